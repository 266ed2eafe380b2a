package utils

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/go-faster/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"dovakin0007.com/editorial-grid/internal/access"
)

// maxExactID bounds numeric ids: doubles hold every integer below 2^53
// exactly, anything larger may already have been rounded by the client.
const maxExactID = 1 << 53

// ID accepts both JSON strings and numbers. Struct values carry numbers as
// doubles, so ids sent by gRPC clients usually arrive unquoted. Larger ids
// must be sent as strings.
type ID string

func (i *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*i = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*i = ID(s)
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return errors.Wrapf(err, "id %s is not a number", b)
	}
	if f != math.Trunc(f) || math.Abs(f) >= maxExactID {
		return errors.Errorf("id %s is not an exact integer", b)
	}
	*i = ID(strconv.FormatInt(int64(f), 10))
	return nil
}

// GridRequest is the union of the fields any grid operation reads.
type GridRequest struct {
	SubmissionID ID     `json:"submissionId"`
	StageID      ID     `json:"stageId"`
	QueryID      ID     `json:"queryId"`
	NoteID       ID     `json:"noteId"`
	RowID        ID     `json:"rowId"`
	NewRowID     ID     `json:"newRowId"`
	UserIDs      []ID   `json:"userIds"`
	Title        string `json:"title"`
	Contents     string `json:"contents"`
}

func (r GridRequest) Params() access.Params {
	return access.Params{
		SubmissionID: string(r.SubmissionID),
		StageID:      string(r.StageID),
		QueryID:      string(r.QueryID),
	}
}

func (r GridRequest) UserIDStrings() []string {
	out := make([]string, 0, len(r.UserIDs))
	for _, id := range r.UserIDs {
		out = append(out, string(id))
	}
	return out
}

// DecodeStruct copies a Struct into out using the JSON field names.
func DecodeStruct(in *structpb.Struct, out any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	b, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// EncodeStruct renders v as a Struct. v must marshal to a JSON object.
func EncodeStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}
