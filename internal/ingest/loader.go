package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// batchEnvelope covers the object layouts collectors and earlier runs write.
type batchEnvelope struct {
	Source                 string            `json:"source"`
	Opportunities          []json.RawMessage `json:"opportunities"`
	ProcessedOpportunities []json.RawMessage `json:"processed_opportunities"`
}

// DecodeBatch reads a JSON array of records, or an object holding one under
// "opportunities" (or "processed_opportunities" for re-processing an earlier
// output file). Elements that are not JSON objects become nil records so the
// pipeline counts and skips them. Numbers are kept as json.Number.
func DecodeBatch(r io.Reader) (SourceBatch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return SourceBatch{}, fmt.Errorf("read batch: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return SourceBatch{}, nil
	}

	var (
		elems  []json.RawMessage
		source string
	)
	if data[0] == '[' {
		if err := json.Unmarshal(data, &elems); err != nil {
			return SourceBatch{}, fmt.Errorf("decode batch array: %w", err)
		}
	} else {
		var env batchEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return SourceBatch{}, fmt.Errorf("decode batch object: %w", err)
		}
		source = env.Source
		elems = env.Opportunities
		if elems == nil {
			elems = env.ProcessedOpportunities
		}
	}

	batch := SourceBatch{Source: source, Records: make([]RawOpportunity, len(elems))}
	for i, elem := range elems {
		batch.Records[i] = decodeRecord(elem)
	}
	return batch, nil
}

func decodeRecord(elem json.RawMessage) RawOpportunity {
	dec := json.NewDecoder(bytes.NewReader(elem))
	dec.UseNumber()
	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return nil
	}
	return RawOpportunity(rec)
}

// LoadBatchFile reads a batch from path.
func LoadBatchFile(path string) (SourceBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return SourceBatch{}, fmt.Errorf("open batch %s: %w", path, err)
	}
	defer f.Close()

	batch, err := DecodeBatch(f)
	if err != nil {
		return SourceBatch{}, fmt.Errorf("%s: %w", path, err)
	}
	return batch, nil
}
