package exam

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExam(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	ex := NewExam("Deneme 7", at)

	assert.Equal(t, "1700000000000", ex.ID)
	assert.Equal(t, "Deneme 7", ex.Title)
	assert.Equal(t, int64(1_700_000_000_000), ex.CreatedAt)
}

func TestReport_NullableFieldsSerializeAsNull(t *testing.T) {
	rep := Report{ID: "r1", UserID: "42", ExamID: "e1"}

	data, err := json.Marshal(rep)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	// Absent username and exam title must surface as explicit nulls, not be
	// omitted: the panel distinguishes "never set" from "missing key".
	assert.Equal(t, "null", string(raw["username"]))
	assert.Equal(t, "null", string(raw["examTitle"]))
}
