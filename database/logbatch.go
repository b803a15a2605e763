package database

// LogBatch groups log records by transaction id. Groups keep the order in
// which their first record was added and records keep their order within a
// group.
type LogBatch struct {
	order  []string
	groups map[string][]LogRecord
}

// TransactionGroup is one transaction and its records.
type TransactionGroup struct {
	TransactionID string      `json:"transactionId"`
	Records       []LogRecord `json:"records"`
}

func NewLogBatch() *LogBatch {
	return &LogBatch{groups: map[string][]LogRecord{}}
}

func (b *LogBatch) Add(rec LogRecord) {
	if _, ok := b.groups[rec.TransactionID]; !ok {
		b.order = append(b.order, rec.TransactionID)
	}
	b.groups[rec.TransactionID] = append(b.groups[rec.TransactionID], rec)
}

// Len returns the number of transactions.
func (b *LogBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.order)
}

// RecordCount returns the number of records across all transactions.
func (b *LogBatch) RecordCount() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, recs := range b.groups {
		n += len(recs)
	}
	return n
}

func (b *LogBatch) TransactionIDs() []string {
	if b == nil {
		return nil
	}
	return append([]string(nil), b.order...)
}

func (b *LogBatch) Records(transactionID string) []LogRecord {
	if b == nil {
		return nil
	}
	return append([]LogRecord(nil), b.groups[transactionID]...)
}

func (b *LogBatch) Groups() []TransactionGroup {
	if b == nil {
		return nil
	}
	out := make([]TransactionGroup, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, TransactionGroup{TransactionID: id, Records: b.Records(id)})
	}
	return out
}

// Clone returns a deep copy.
func (b *LogBatch) Clone() *LogBatch {
	c := NewLogBatch()
	if b == nil {
		return c
	}
	for _, id := range b.order {
		for _, rec := range b.groups[id] {
			c.Add(rec)
		}
	}
	return c
}

// summary collapses a transaction group into the row stored in a log table.
func summary(recs []LogRecord) LogSummary {
	first, last := recs[0], recs[len(recs)-1]
	s := LogSummary{
		TransactionID:   first.TransactionID,
		TransactionName: first.TransactionName,
		BeginTime:       first.BeginTime,
		UserName:        first.User,
		BeginLSN:        first.LSN,
		EndLSN:          last.LSN,
	}
	for _, rec := range recs {
		if rec.EndTime != "" {
			s.EndTime = rec.EndTime
			break
		}
	}
	return s
}
