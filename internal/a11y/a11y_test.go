// ABOUTME: Tests for shared accessibility value types
// ABOUTME: Covers component parsing, component sets, masks and event cloning

package a11y

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseComponentName(t *testing.T) {
	tests := []struct {
		in      string
		want    ComponentName
		wantErr bool
	}{
		{in: "com.example/com.example.Reader", want: ComponentName{"com.example", "com.example.Reader"}},
		{in: "com.example/.Reader", want: ComponentName{"com.example", "com.example.Reader"}},
		{in: "com.example", wantErr: true},
		{in: "/Reader", wantErr: true},
		{in: "com.example/", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseComponentName(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComponentSet_FlattenRoundTrip(t *testing.T) {
	set := ParseComponentSet("b.pkg/b.pkg.Svc:a.pkg/.Svc::garbage")

	assert.Len(t, set, 2)
	assert.True(t, set.Has(ComponentName{"a.pkg", "a.pkg.Svc"}))
	assert.Equal(t, "a.pkg/a.pkg.Svc:b.pkg/b.pkg.Svc", set.String())
	assert.True(t, ParseComponentSet(set.String()).Equal(set))
}

func TestComponentSet_RemovePackage(t *testing.T) {
	set := ParseComponentSet("a/a.One:a/a.Two:b/b.One")

	assert.True(t, set.RemovePackage("a"))
	assert.False(t, set.RemovePackage("a"))
	assert.Equal(t, "b/b.One", set.String())
}

func TestValidAction(t *testing.T) {
	assert.True(t, ValidAction(ActionClick))
	assert.True(t, ValidAction(ActionDismiss))
	assert.False(t, ValidAction(0))
	assert.False(t, ValidAction(ActionClick|ActionFocus))
	assert.False(t, ValidAction(Action(1<<25)))
}

func TestParseEventType(t *testing.T) {
	got, ok := ParseEventType("View_Clicked")
	assert.True(t, ok)
	assert.Equal(t, EventViewClicked, got)

	got, ok = ParseEventType("all")
	assert.True(t, ok)
	assert.Equal(t, EventTypesAll, got)

	_, ok = ParseEventType("nope")
	assert.False(t, ok)
}

func TestMaskStrings(t *testing.T) {
	assert.Equal(t, "[spoken, generic]", (FeedbackSpoken | FeedbackGeneric).String())
	assert.Equal(t, "[view_clicked, window_state_changed]", (EventViewClicked | EventWindowStateChanged).String())
	assert.Equal(t, "[]", Capability(0).String())
}

func TestEvent_CloneIsIndependent(t *testing.T) {
	ev := &Event{
		Type:      EventViewFocused,
		WindowID:  3,
		Text:      []string{"hello"},
		Source:    &NodeRef{WindowID: 3, NodeID: 7},
		EventTime: time.Now(),
	}
	ev.Seal()

	c := ev.Clone()
	c.Text[0] = "changed"
	c.Source.NodeID = 9
	c.StripSource()

	assert.False(t, c.Sealed())
	assert.Nil(t, c.Source)
	assert.Equal(t, "hello", ev.Text[0])
	assert.Equal(t, int64(7), ev.Source.NodeID)
}

func TestServiceInfo_Equal(t *testing.T) {
	a := &ServiceInfo{Component: ComponentName{"p", "p.S"}, Packages: []string{"x"}, FeedbackType: FeedbackSpoken}
	b := a.Clone()
	assert.True(t, a.Equal(b))

	b.Packages[0] = "y"
	assert.False(t, a.Equal(b))
	assert.False(t, EqualServiceLists([]*ServiceInfo{a}, []*ServiceInfo{b}))
	assert.True(t, EqualServiceLists(nil, nil))
}
