package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weavegraph/core/internal/store"
)

type fakeEvents struct{ published []string }

func (f *fakeEvents) Publish(ctx context.Context, workflowID, eventType string, payload any) error {
	f.published = append(f.published, eventType)
	return nil
}

type fakeGenerator struct{ result any }

func (g *fakeGenerator) Generate(ctx context.Context, instruction string, inputs map[string]any, schema map[string]any) (any, error) {
	return g.result, nil
}

func newTestSession(t *testing.T) (*Session, *fakeDriver) {
	t.Helper()
	driver := &fakeDriver{}
	backend := store.NewMemory()
	sess, err := New(context.Background(), "wf1", driver, backend, &fakeEvents{}, &fakeGenerator{result: map[string]any{"ok": true}})
	require.NoError(t, err)
	return sess, driver
}

func TestNew_OpensMainTab(t *testing.T) {
	sess, _ := newTestSession(t)
	tabs, err := sess.ListTabs(context.Background())
	require.NoError(t, err)
	require.Len(t, tabs, 1)
	require.Equal(t, MainTabName, tabs[0].Name)
	require.True(t, tabs[0].IsActive)
}

func TestNavigate_ValidatesLandingChangesURL(t *testing.T) {
	sess, _ := newTestSession(t)
	err := sess.Navigate(context.Background(), "https://example.com", "", true)
	require.NoError(t, err)
	tab, err := sess.GetCurrentTab(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://example.com", tab.URL)
}

func TestOpenAndSwitchAndCloseTab(t *testing.T) {
	sess, _ := newTestSession(t)
	require.NoError(t, sess.OpenTab(context.Background(), "popup", "https://example.com/popup"))
	tabs, err := sess.ListTabs(context.Background())
	require.NoError(t, err)
	require.Len(t, tabs, 2)

	require.NoError(t, sess.SwitchTab(context.Background(), MainTabName))
	current, err := sess.GetCurrentTab(context.Background())
	require.NoError(t, err)
	require.Equal(t, MainTabName, current.Name)

	require.NoError(t, sess.CloseTab(context.Background(), "popup"))
	tabs, err = sess.ListTabs(context.Background())
	require.NoError(t, err)
	require.Len(t, tabs, 1)
}

func TestCloseTab_RejectsMainPage(t *testing.T) {
	sess, _ := newTestSession(t)
	err := sess.CloseTab(context.Background(), MainTabName)
	require.Error(t, err)
}

func TestQuery_ExistsAbsentCount(t *testing.T) {
	sess, driver := newTestSession(t)
	driver.pages[0].exists["#btn"] = true

	exists, err := sess.Query(context.Background(), "#btn", "exists", "")
	require.NoError(t, err)
	require.Equal(t, true, exists)

	absent, err := sess.Query(context.Background(), "#missing", "absent", "")
	require.NoError(t, err)
	require.Equal(t, true, absent)

	count, err := sess.Query(context.Background(), "#btn", "count", "")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestResetBrowser_KeepsMainPageClosesOthers(t *testing.T) {
	sess, _ := newTestSession(t)
	require.NoError(t, sess.OpenTab(context.Background(), "popup", "https://example.com"))
	require.NoError(t, sess.ResetBrowser(context.Background()))
	tabs, err := sess.ListTabs(context.Background())
	require.NoError(t, err)
	require.Len(t, tabs, 1)
	require.Equal(t, MainTabName, tabs[0].Name)
}

func TestExtract_DelegatesToGenerator(t *testing.T) {
	sess, _ := newTestSession(t)
	out, err := sess.Extract(context.Background(), "extract the title", map[string]any{"type": "object"}, "")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"ok": true}, out)
}
