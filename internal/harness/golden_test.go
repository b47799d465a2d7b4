package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalTrace_OmitsUnusedFields(t *testing.T) {
	data, err := MarshalTrace("tiny", []TraceEvent{
		{Seq: 1, Action: StepOffline},
		{Seq: 2, Action: StepSync, Skipped: "offline"},
	})
	require.NoError(t, err)

	want := `{
  "scenario_name": "tiny",
  "trace": [
    {
      "seq": 1,
      "action": "offline",
      "queued": 0
    },
    {
      "seq": 2,
      "action": "sync",
      "skipped": "offline",
      "queued": 0
    }
  ]
}
`
	assert.Equal(t, want, string(data))
}
