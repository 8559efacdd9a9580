package radio

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taoyao-code/rui3-gateway/internal/protocol/rui3"
)

func TestApplyAndReadTuning(t *testing.T) {
	r, m := newTestRadio(t, rui3.RevisionCurrent)
	ctx := context.Background()
	m.params["+IQINVER"] = "0"
	m.params["+SYNCWORD"] = "1424"
	m.params["+SYMBOLTIMEOUT"] = "0"

	iq, sw := true, SyncWord(0x3444)
	require.NoError(t, r.ApplyTuning(ctx, TuningUpdate{IQInversion: &iq, SyncWord: &sw}))
	// 未给出的字段不下发
	assert.Equal(t, []string{"AT+IQINVER=1", "AT+SYNCWORD=3444"}, m.commands())
	assert.Empty(t, m.retried)

	got, err := r.ReadTuning(ctx)
	require.NoError(t, err)
	assert.Equal(t, Tuning{IQInversion: true, SyncWord: 0x3444, SymbolTimeout: 0}, got)
}

func TestApplyTuning_FailFast(t *testing.T) {
	r, m := newTestRadio(t, rui3.RevisionCurrent)
	m.failOn["AT+IQINVER=0"] = errLink

	iq, st := false, uint8(3)
	err := r.ApplyTuning(context.Background(), TuningUpdate{IQInversion: &iq, SymbolTimeout: &st})
	assert.ErrorIs(t, err, rui3.ErrTransport)
	assert.Equal(t, []string{"AT+IQINVER=0"}, m.commands())
}

func TestSyncWordText(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    SyncWord
		wantErr bool
	}{
		{"大写", `"3444"`, 0x3444, false},
		{"小写", `"abcd"`, 0xABCD, false},
		{"位数不足", `"344"`, 0, true},
		{"非十六进制", `"34G4"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w SyncWord
			err := json.Unmarshal([]byte(tt.in), &w)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, w)
		})
	}

	out, err := json.Marshal(Tuning{SyncWord: 0x1424})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"sync_word":"1424"`)
}
