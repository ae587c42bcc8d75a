package verification

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

//go:embed data/phone_numbers.json
var defaultDataset []byte

// Column and field names accepted for the phone number, in priority order.
// Spreadsheet exports use the spaced form.
var phoneKeys = []string{"phoneNumber", "phone number", "mobileNumber", "mobile number", "mobile", "phone"}

// Record is one registered number.
type Record struct {
	// PhoneNumber is stored as digits only, including the region prefix.
	PhoneNumber string
	Region      string
}

// Dataset indexes records by normalized number.
type Dataset struct {
	byNumber map[string]Record
	regions  map[string]struct{}
}

// NewDataset builds a dataset from records. Numbers are normalized to digits;
// a record without a region takes the leading group of its number, so
// "91 5555555555" belongs to region 91.
func NewDataset(records []Record) (*Dataset, error) {
	ds := &Dataset{
		byNumber: make(map[string]Record, len(records)),
		regions:  make(map[string]struct{}),
	}

	for i, r := range records {
		region := digitsOnly(r.Region)
		if region == "" {
			region = leadingGroup(r.PhoneNumber)
		}
		number := digitsOnly(r.PhoneNumber)
		if number == "" || region == "" {
			return nil, fmt.Errorf("record %d: phone number and region are required", i+1)
		}
		if !strings.HasPrefix(number, region) {
			number = region + number
		}

		ds.byNumber[number] = Record{PhoneNumber: number, Region: region}
		ds.regions[region] = struct{}{}
	}

	if len(ds.byNumber) == 0 {
		return nil, errors.New("dataset has no records")
	}
	return ds, nil
}

// DefaultDataset returns the embedded dataset.
func DefaultDataset() (*Dataset, error) {
	return ParseJSON(bytes.NewReader(defaultDataset))
}

// LoadDataset reads a .json or .csv file.
func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open phone dataset: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(f)
	case ".csv":
		return ParseCSV(f)
	default:
		return nil, fmt.Errorf("unsupported phone dataset format %q", filepath.Ext(path))
	}
}

// ParseJSON reads an array of objects. Values may be strings or numbers.
func ParseJSON(r io.Reader) (*Dataset, error) {
	var rows []map[string]any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode phone dataset: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		var rec Record
		for _, k := range phoneKeys {
			if v, ok := row[k]; ok {
				rec.PhoneNumber = scalarString(v)
				break
			}
		}
		if v, ok := row["region"]; ok {
			rec.Region = scalarString(v)
		}
		records = append(records, rec)
	}
	return NewDataset(records)
}

// ParseCSV reads a CSV file with a header row naming the phone column and an
// optional region column.
func ParseCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read phone dataset header: %w", err)
	}

	phoneCol, regionCol := -1, -1
	for i, h := range header {
		h = strings.TrimSpace(h)
		if strings.EqualFold(h, "region") {
			regionCol = i
			continue
		}
		for _, k := range phoneKeys {
			if phoneCol < 0 && strings.EqualFold(h, k) {
				phoneCol = i
			}
		}
	}
	if phoneCol < 0 {
		return nil, errors.New("phone dataset has no phone number column")
	}

	var records []Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read phone dataset: %w", err)
		}

		rec := Record{PhoneNumber: row[phoneCol]}
		if regionCol >= 0 && regionCol < len(row) {
			rec.Region = row[regionCol]
		}
		records = append(records, rec)
	}
	return NewDataset(records)
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.byNumber)
}

// HasRegion reports whether any record belongs to region.
func (d *Dataset) HasRegion(region string) bool {
	_, ok := d.regions[region]
	return ok
}

func (d *Dataset) lookup(number string) (Record, bool) {
	rec, ok := d.byNumber[number]
	return rec, ok
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// leadingGroup returns the digits before the first separator of a number
// written as "<region> <national>", or "" if there is no separator.
func leadingGroup(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	idx := strings.IndexAny(s, " -")
	if idx <= 0 {
		return ""
	}
	return digitsOnly(s[:idx])
}
