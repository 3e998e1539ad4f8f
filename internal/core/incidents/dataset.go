package incidents

// Dataset is the immutable record collection of one load.
type Dataset struct {
	year    int
	records []Record
}

// NewDataset copies records into a new dataset.
func NewDataset(year int, records []Record) *Dataset {
	return newDataset(year, append([]Record(nil), records...))
}

func newDataset(year int, records []Record) *Dataset {
	if records == nil {
		records = []Record{}
	}

	return &Dataset{year: year, records: records}
}

// Year is the year every record belongs to.
func (d *Dataset) Year() int { return d.year }

// Len is the number of records.
func (d *Dataset) Len() int { return len(d.records) }

// Records returns a copy of the records in emission order.
func (d *Dataset) Records() []Record {
	return append([]Record{}, d.records...)
}

// Clone returns an independent copy, one per session.
func (d *Dataset) Clone() *Dataset {
	return NewDataset(d.year, d.records)
}
