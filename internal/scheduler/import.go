package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/matheus3301/wpphub/internal/wa"
	"go.uber.org/zap"
)

// Logical columns of a billing sheet.
const (
	fieldName    = "name"
	fieldAccount = "account"
	fieldAmount  = "amount"
	fieldDueDate = "due_date"
	fieldPhone   = "phone"
	fieldNotes   = "notes"
)

// synonyms lists accepted header spellings per field, already normalized.
var synonyms = map[string][]string{
	fieldName:    {"nama", "name", "namapelanggan", "namanasabah", "customer", "customername", "pelanggan", "nasabah"},
	fieldAccount: {"norekening", "nomorrekening", "rekening", "account", "accountnumber", "accountno", "noakun", "noref", "reference", "referensi", "nokontrak", "idpelanggan"},
	fieldAmount:  {"jumlah", "jumlahtagihan", "amount", "nominal", "tagihan", "total", "totaltagihan"},
	fieldDueDate: {"jatuhtempo", "tanggaljatuhtempo", "tgljatuhtempo", "duedate", "due", "tanggal", "date"},
	fieldPhone:   {"nohp", "nomorhp", "hp", "phone", "phonenumber", "telepon", "notelp", "notelepon", "nowa", "nomorwa", "whatsapp", "wa"},
	fieldNotes:   {"catatan", "keterangan", "ket", "notes", "note"},
}

// ImportResult summarizes an import. Created == 0 is a warning outcome, not a failure.
type ImportResult struct {
	Created  int      `json:"created"`
	Skipped  int      `json:"skipped"`
	Warnings []string `json:"warnings,omitempty"`
}

// Reminder is the data the reminder template renders.
type Reminder struct {
	Name    string
	Account string
	Amount  string
	DueDate string
	Notes   string
	// Offset is the day offset of this reminder relative to the due date.
	Offset int
}

func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// resolveColumns maps fields to column indexes. Exact synonym matches win;
// otherwise a header containing a synonym of four or more letters is used.
func resolveColumns(header []string) map[string]int {
	norm := make([]string, len(header))
	for i, h := range header {
		norm[i] = normalizeHeader(h)
	}
	cols := make(map[string]int)
	taken := make(map[int]bool)
	for _, exact := range []bool{true, false} {
		for _, field := range []string{fieldDueDate, fieldName, fieldAccount, fieldAmount, fieldPhone, fieldNotes} {
			if _, ok := cols[field]; ok {
				continue
			}
			for i, h := range norm {
				if taken[i] || h == "" {
					continue
				}
				if matchHeader(h, synonyms[field], exact) {
					cols[field] = i
					taken[i] = true
					break
				}
			}
		}
	}
	return cols
}

func matchHeader(h string, candidates []string, exact bool) bool {
	for _, c := range candidates {
		if exact && h == c {
			return true
		}
		if !exact && len(c) >= 4 && strings.Contains(h, c) {
			return true
		}
	}
	return false
}

func cell(row []string, cols map[string]int, field string) string {
	i, ok := cols[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ImportTabular turns billing rows into reminder tasks for connID. The first
// row is the header. Each valid row yields one task per configured offset at
// the configured hour; times already past and tasks that already exist are
// left out. Rows are skipped, never guessed, when a required value is missing.
func (s *Scheduler) ImportTabular(ctx context.Context, rows [][]string, connID string) (ImportResult, error) {
	var res ImportResult
	if len(rows) == 0 {
		res.Warnings = append(res.Warnings, "no rows to import")
		return res, nil
	}
	cols := resolveColumns(rows[0])
	for _, f := range []string{fieldName, fieldAccount, fieldAmount, fieldDueDate} {
		if _, ok := cols[f]; !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("no %s column in header", f))
		}
	}

	existing, err := s.existingKeys()
	if err != nil {
		return res, err
	}

	now := s.now()
	for n, row := range rows[1:] {
		line := n + 2
		name := cell(row, cols, fieldName)
		account := cell(row, cols, fieldAccount)
		amount := cell(row, cols, fieldAmount)
		rawDue := cell(row, cols, fieldDueDate)
		if name == "" || account == "" || amount == "" || rawDue == "" {
			res.Skipped++
			continue
		}

		due, err := ParseDate(rawDue, s.loc)
		if err != nil {
			res.Skipped++
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d (%s): %v", line, name, err))
			continue
		}
		phone := cell(row, cols, fieldPhone)
		if phone == "" {
			res.Skipped++
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d (%s): no phone number", line, name))
			continue
		}
		to, err := wa.ParseRecipient(phone)
		if err != nil {
			res.Skipped++
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d (%s): %v", line, name, err))
			continue
		}
		recipient := wa.Address(to)

		for _, offset := range s.opts.Reminder.Offsets {
			d := due.AddDate(0, 0, offset)
			fireAt := time.Date(d.Year(), d.Month(), d.Day(), s.opts.Reminder.Hour, 0, 0, 0, s.loc)
			if !fireAt.After(now) {
				continue
			}
			body, err := s.render(Reminder{
				Name:    name,
				Account: account,
				Amount:  amount,
				DueDate: due.Format("02/01/2006"),
				Notes:   cell(row, cols, fieldNotes),
				Offset:  offset,
			})
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("row %d (%s): %v", line, name, err))
				continue
			}
			key := taskKey(connID, recipient, body, fireAt)
			if existing[key] {
				continue
			}
			if _, err := s.Add(ctx, connID, recipient, body, fireAt, false); err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("row %d (%s): %v", line, name, err))
				continue
			}
			existing[key] = true
			res.Created++
		}
	}

	if res.Created == 0 {
		res.Warnings = append(res.Warnings, "no reminders were scheduled")
	}
	s.logger.Info("tabular import finished",
		zap.String("connection", connID),
		zap.Int("rows", len(rows)-1),
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// Sync fetches rows from src and imports them.
func (s *Scheduler) Sync(ctx context.Context, src TabularSource, connID string) (ImportResult, error) {
	rows, err := src.Fetch(ctx)
	if err != nil {
		return ImportResult{}, err
	}
	return s.ImportTabular(ctx, rows, connID)
}

func (s *Scheduler) render(r Reminder) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("render reminder: %w", err)
	}
	return buf.String(), nil
}

func (s *Scheduler) existingKeys() (map[string]bool, error) {
	tasks, err := s.opts.Store.ListTasks()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	keys := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		keys[taskKey(t.ConnectionID, t.Recipient, t.Body, t.FireAt)] = true
	}
	return keys, nil
}

func taskKey(connID, recipient, body string, fireAt time.Time) string {
	return fmt.Sprintf("%s|%s|%d|%s", connID, recipient, fireAt.UnixMilli(), body)
}

