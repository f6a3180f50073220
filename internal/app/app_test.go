package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/testutil"
)

func TestMain(m *testing.M) {
	testutil.RunFakeClassifierIfRequested()
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()

	hash, err := bcrypt.GenerateFromPassword([]byte("orchid"), bcrypt.MinCost)
	require.NoError(t, err)

	s := &conf.Settings{Version: "test"}
	s.Main.Name = "greenhouse-1"
	s.Worker.Command, s.Worker.Args, s.Worker.Env = testutil.FakeClassifierCommand()
	s.Worker.Timeout = 10 * time.Second
	s.Worker.StopTimeout = time.Second
	s.Worker.TopK = 5
	s.Inference.Threshold = 0.6
	s.Database.Type = "sqlite"
	s.Database.SQLite.Path = filepath.Join(dir, "floranet.db")
	s.Storage.Uploads = filepath.Join(dir, "uploads")
	s.Storage.Archive = filepath.Join(dir, "species")
	s.Storage.PublicBase = "/media"
	s.Storage.MaxUploadSize = 1 << 20
	s.WebServer.Enabled = true
	s.WebServer.Port = "0"
	s.WebServer.RateLimit = 100
	s.WebServer.Burst = 100
	s.Security.Admin.Username = "curator"
	s.Security.Admin.PasswordHash = string(hash)
	return s
}

func TestServiceEndToEnd(t *testing.T) {
	s := testSettings(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	a, err := New(s, WithLogger(testutil.QuietLogger()), WithListener(ln))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	base := "http://" + ln.Addr().String()
	client := &http.Client{Timeout: 15 * time.Second}
	defer client.CloseIdleConnections()

	// Submit a photo
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("location_name", "Bukit Lawang"))
	part, err := w.CreateFormFile("image", "flower.jpg")
	require.NoError(t, err)
	_, _ = part.Write([]byte("not really a jpeg"))
	require.NoError(t, w.Close())

	resp, err := client.Post(base+"/api/v2/observations", w.FormDataContentType(), &body)
	require.NoError(t, err)
	var sub struct {
		ObservationID uint    `json:"observation_id"`
		SpeciesName   string  `json:"species_name"`
		Confidence    float64 `json:"confidence"`
		AutoFlagged   bool    `json:"auto_flagged"`
		Candidates    []struct {
			Name string `json:"name"`
		} `json:"candidates"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Rafflesia arnoldii", sub.SpeciesName)
	assert.True(t, sub.AutoFlagged)
	require.Len(t, sub.Candidates, 2)
	assert.Equal(t, "Amorphophallus titanum", sub.Candidates[1].Name)

	// Confirm it as the top candidate
	req, err := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/api/v2/observations/%d/confirm", base, sub.ObservationID),
		strings.NewReader(`{"scientific_name":"Rafflesia arnoldii"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("curator", "orchid")
	resp, err = client.Do(req)
	require.NoError(t, err)
	var mod struct {
		Observation struct {
			Status string `json:"status"`
		} `json:"observation"`
		ArchivedRef string `json:"archived_ref"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&mod))
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "verified", mod.Observation.Status)
	require.NotEmpty(t, mod.ArchivedRef)
	assert.True(t, strings.HasPrefix(mod.ArchivedRef, filepath.Join(s.Storage.Archive, "rafflesia-arnoldii")))

	archived, err := os.ReadFile(mod.ArchivedRef)
	require.NoError(t, err)
	assert.Equal(t, "not really a jpeg", string(archived))

	assert.Equal(t, 1, a.Supervisor().Starts())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestNewFailsOnBadNotificationURL(t *testing.T) {
	s := testSettings(t)
	s.Notification.Enabled = true
	s.Notification.URLs = []string{"not-a-service://"}

	_, err := New(s, WithLogger(testutil.QuietLogger()))
	require.Error(t, err)
}

func TestNewWithoutWebServer(t *testing.T) {
	s := testSettings(t)
	s.WebServer.Enabled = false

	a, err := New(s, WithLogger(testutil.QuietLogger()))
	require.NoError(t, err)

	res, err := a.Classifier.Classify(t.Context(), "echo:Nepenthes rajah", 0)
	require.NoError(t, err)
	assert.Equal(t, "Nepenthes rajah", res.PrimaryName)
	assert.False(t, res.AutoFlagged)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
