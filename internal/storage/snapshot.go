package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/miradorstack/mirador-heal/internal/models"
)

// MarshalRecords encodes records as a JSON list with RFC 3339 timestamps.
func MarshalRecords(records []models.ErrorRecord) ([]byte, error) {
	if records == nil {
		records = []models.ErrorRecord{}
	}
	return json.Marshal(records)
}

// UnmarshalRecords decodes an exported list back into records with
// first-class time values and canonical metadata numbers.
func UnmarshalRecords(data []byte) ([]models.ErrorRecord, error) {
	var records []models.ErrorRecord
	if err := decodeJSON(data, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

// decodeJSON decodes numbers as json.Number and normalizes record metadata,
// so integer values such as status codes come back as int64, not float64.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	switch out := v.(type) {
	case *models.ErrorRecord:
		out.Metadata = models.NormalizeMetadata(out.Metadata)
	case *[]models.ErrorRecord:
		for i := range *out {
			(*out)[i].Metadata = models.NormalizeMetadata((*out)[i].Metadata)
		}
	}
	return nil
}

// WriteSnapshot writes a zstd-compressed export to w.
func WriteSnapshot(w io.Writer, records []models.ErrorRecord) error {
	data, err := MarshalRecords(records)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	return enc.Close()
}

// ReadSnapshot reads a snapshot produced by WriteSnapshot.
func ReadSnapshot(r io.Reader) ([]models.ErrorRecord, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return UnmarshalRecords(data)
}
