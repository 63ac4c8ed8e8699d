package wa

import "go.mau.fi/whatsmeow"

// QRCode is dispatched for every pairing code the server issues.
type QRCode struct {
	Code string
}

// QRTimeout is dispatched when all pairing codes expired without a scan.
type QRTimeout struct{}

// QRError is dispatched when pairing fails.
type QRError struct {
	Err error
}

func (a *Adapter) forwardQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			a.dispatch(&QRCode{Code: item.Code})
		case "success":
			// PairSuccess and Connected arrive through the client itself.
			return
		case "timeout":
			a.dispatch(&QRTimeout{})
			return
		default:
			if item.Error != nil {
				a.dispatch(&QRError{Err: item.Error})
				return
			}
		}
	}
}
