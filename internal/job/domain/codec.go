package domain

import (
	"encoding/json"
	"reflect"
	"strings"
)

// jobRecordFields lists the JSON keys JobRecord owns, so everything else can
// be kept in Extra.
var jobRecordFields = func() map[string]struct{} {
	fields := make(map[string]struct{})
	t := reflect.TypeOf(JobRecord{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			fields[name] = struct{}{}
		}
	}
	return fields
}()

type jobRecordJSON JobRecord

// MarshalJSON writes the known fields and then any extra fields that do not
// collide with them.
func (j JobRecord) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(jobRecordJSON(j))
	if err != nil {
		return nil, err
	}
	if len(j.Extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(j.Extra)+len(jobRecordFields))
	for k, v := range j.Extra {
		if _, owned := jobRecordFields[k]; !owned {
			merged[k] = v
		}
	}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads the known fields and keeps the rest in Extra
func (j *JobRecord) UnmarshalJSON(data []byte) error {
	var known jobRecordJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range jobRecordFields {
		delete(all, k)
	}
	if len(all) > 0 {
		known.Extra = all
	} else {
		known.Extra = nil
	}

	*j = JobRecord(known)
	return nil
}
