// ABOUTME: Tests for the JSON codec and the wire conversions of broker types
// ABOUTME: Checks field mapping, time handling and envelope encoding

package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"

	"github.com/2389/a11y-gateway/internal/a11y"
)

func TestCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	require.NotNil(t, codec)
	assert.Equal(t, "json", codec.Name())
}

func TestCodec_EnvelopeCarriesOnePayload(t *testing.T) {
	codec := jsonCodec{}
	data, err := codec.Marshal(&ServiceCommand{Connected: &Connected{ConnectionID: 3}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"connected":{"connection_id":3}}`, string(data))

	var back ServiceCommand
	require.NoError(t, codec.Unmarshal(data, &back))
	require.NotNil(t, back.Connected)
	assert.Equal(t, 3, back.Connected.ConnectionID)
	assert.Nil(t, back.Event)

	assert.Error(t, codec.Unmarshal([]byte("{"), &back))
}

func TestEvent_Conversion(t *testing.T) {
	when := time.UnixMilli(1_700_000_000_123)
	ev := &a11y.Event{
		Type:         a11y.EventViewClicked,
		WindowID:     4,
		PackageName:  "com.app",
		ClassName:    "Button",
		Text:         []string{"x", "y"},
		EventTime:    when,
		ConnectionID: 9,
		Source:       &a11y.NodeRef{WindowID: 4, NodeID: 77},
	}

	wire := FromEvent(ev)
	assert.Equal(t, uint32(a11y.EventViewClicked), wire.Type)
	assert.Equal(t, when.UnixMilli(), wire.EventTimeMs)
	require.NotNil(t, wire.Source)

	back := wire.A11y()
	assert.Equal(t, ev.Type, back.Type)
	assert.Equal(t, ev.Text, back.Text)
	assert.True(t, back.EventTime.Equal(when))
	assert.Equal(t, int64(77), back.Source.NodeID)
	assert.Equal(t, 9, back.ConnectionID)

	wire.Text[0] = "changed"
	assert.Equal(t, "x", ev.Text[0])
}

func TestEvent_ZeroTimeStaysZero(t *testing.T) {
	wire := FromEvent(&a11y.Event{Type: a11y.EventViewFocused})
	assert.Zero(t, wire.EventTimeMs)
	assert.Nil(t, wire.Source)
	assert.True(t, wire.A11y().EventTime.IsZero())
}

func TestNodeQuery_Conversion(t *testing.T) {
	q := a11y.NodeQuery{
		NodeID:        5,
		Text:          "ok",
		Action:        a11y.ActionClick,
		Arguments:     map[string]string{"row": "2"},
		InteractionID: 12,
		FetchFlags:    a11y.FetchReportViewIDs,
		Spec:          a11y.MagnificationSpec{Scale: 2, OffsetX: 10},
		ConnectionID:  6,
	}

	back := FromNodeQuery(q).A11y()
	assert.Equal(t, q, back)
}

func TestNodes_Conversion(t *testing.T) {
	nodes := []a11y.Node{{ID: 1, WindowID: 2, ViewID: "ok_button", Text: "OK", Bounds: a11y.Rect{Right: 10, Bottom: 5}}}
	assert.Equal(t, nodes, ToNodes(FromNodes(nodes)))
	assert.Empty(t, ToNodes(nil))
}

func TestFromClientState(t *testing.T) {
	tests := []struct {
		state     a11y.ClientState
		wantA11y  bool
		wantTouch bool
	}{
		{state: 0},
		{state: a11y.StateAccessibilityEnabled, wantA11y: true},
		{state: a11y.StateAccessibilityEnabled | a11y.StateTouchExplorationEnabled, wantA11y: true, wantTouch: true},
	}
	for _, tt := range tests {
		got := FromClientState(tt.state)
		if got.AccessibilityEnabled != tt.wantA11y || got.TouchExplorationEnabled != tt.wantTouch {
			t.Errorf("FromClientState(%d) = %+v", tt.state, got)
		}
		assert.Equal(t, int(tt.state), got.State)
	}
}

func TestServiceInfoUpdate_Apply(t *testing.T) {
	info := &a11y.ServiceInfo{
		Component:    a11y.ComponentName{Package: "p", Class: "p.C"},
		Capabilities: a11y.CapabilityRetrieveWindowContent,
	}
	update := &ServiceInfoUpdate{
		EventTypes:            uint32(a11y.EventViewClicked),
		FeedbackType:          uint32(a11y.FeedbackSpoken),
		NotificationTimeoutMs: 250,
		Flags:                 uint32(a11y.FlagReportViewIDs),
		Packages:              []string{"com.app"},
	}

	update.Apply(info)

	assert.Equal(t, a11y.EventViewClicked, info.EventTypes)
	assert.Equal(t, a11y.FeedbackSpoken, info.FeedbackType)
	assert.Equal(t, 250*time.Millisecond, info.NotificationTimeout)
	assert.True(t, info.HasFlag(a11y.FlagReportViewIDs))
	assert.Equal(t, []string{"com.app"}, info.Packages)
	assert.Equal(t, a11y.CapabilityRetrieveWindowContent, info.Capabilities, "capabilities are not dynamic")
}
