package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visibility-cli/internal/model"
)

func TestMarshalFrame_Progress(t *testing.T) {
	ev := progressEvent("working", 42.5)

	frame, err := ev.MarshalFrame()
	require.NoError(t, err)

	assert.Equal(t, "event: progress\ndata: {\"message\":\"working\",\"progress\":42.5}\n\n", string(frame))
}

func TestMarshalFrame_Result(t *testing.T) {
	r := model.QueryResult{PhraseID: 10, Model: "ChatGPT"}
	ev := resultEvent(r, true, 50)

	frame, err := ev.MarshalFrame()
	require.NoError(t, err)

	s := string(frame)
	assert.Contains(t, s, "event: result\n")
	assert.Contains(t, s, `"cached":true`)
	assert.Contains(t, s, `"percent":50`)
	assert.Contains(t, s, `"model":"ChatGPT"`)
}

func TestMarshalFrame_FatalError(t *testing.T) {
	frame, err := FatalErrorEvent("boom").MarshalFrame()
	require.NoError(t, err)

	s := string(frame)
	assert.Contains(t, s, "event: error\n")
	assert.Contains(t, s, `"fatal":true`)
}

func TestMarshalFrame_UnitError_OmitsFatal(t *testing.T) {
	frame, err := unitErrorEvent(10, "Claude", "query failed").MarshalFrame()
	require.NoError(t, err)

	s := string(frame)
	assert.Contains(t, s, `"phrase_id":10`)
	assert.Contains(t, s, `"fatal":false`)
}

func TestMarshalFrame_Complete(t *testing.T) {
	frame, err := completeEvent(6, 4, 2).MarshalFrame()
	require.NoError(t, err)

	s := string(frame)
	assert.Contains(t, s, "event: complete\n")
	assert.Contains(t, s, `"total_units":6`)
	assert.Contains(t, s, `"fresh_results":4`)
	assert.Contains(t, s, `"cached_replay":2`)
}
