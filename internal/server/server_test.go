package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mindtrace/voiceid/internal/audio"
	"github.com/mindtrace/voiceid/internal/listener"
	"github.com/mindtrace/voiceid/internal/pipeline"
	"github.com/mindtrace/voiceid/internal/speaker"
	"github.com/mindtrace/voiceid/internal/store"
)

type stubSource struct{}

func (stubSource) Open() error { return nil }
func (stubSource) Read() (audio.Frame, error) {
	time.Sleep(time.Millisecond)
	return audio.Frame{Samples: make([]int16, 512), Timestamp: time.Now()}, nil
}
func (stubSource) Close() error { return nil }

type stubVAD struct{}

func (stubVAD) Infer(context.Context, audio.Frame) (float64, error) { return 0.1, nil }

func newTestServer(t *testing.T) (*Server, *store.Store, *pipeline.Journal) {
	t.Helper()

	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	segCfg := pipeline.SegmenterConfig{
		SampleRate:           16000,
		FrameSize:            512,
		VADThreshold:         0.85,
		SilenceDuration:      2.0,
		MinSpeechDuration:    1.0,
		MaxRecordingDuration: 30.0,
	}
	lc := listener.New(segCfg, 2, stubVAD{}, func() audio.Source { return stubSource{} }, func(*pipeline.Segment) {})
	t.Cleanup(lc.Stop)

	id := speaker.NewIdentifier(st, 0.85)
	journal := pipeline.NewJournal(50, 100)
	gate := pipeline.NewQualityGate(10.0)

	return New(lc, id, st, journal, gate), st, journal
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, h http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return w
}

func TestListenStartStopStatus(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	w := postJSON(t, h, "/listen/start", map[string]string{"user_id": "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", w.Code, w.Body.String())
	}

	var st listener.Status
	getJSON(t, h, "/listen/status", &st)
	if st.State != listener.StateListening || st.UserID != "alice" {
		t.Errorf("status = %+v, want listening/alice", st)
	}

	w = postJSON(t, h, "/listen/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop status = %d", w.Code)
	}
	getJSON(t, h, "/listen/status", &st)
	if st.State != listener.StateIdle {
		t.Errorf("status = %+v, want idle", st)
	}
}

func TestListenStartRequiresUser(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	w := postJSON(t, h, "/listen/start", map[string]string{"user_id": "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestIdentifyEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	w := postJSON(t, h, "/identify", identifyRequest{
		UserID:          "alice",
		Embedding:       []float64{1, 0, 0},
		ImportanceScore: 0.5,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp identifyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ClusterID != "alice_speaker_0" {
		t.Errorf("cluster = %q, want alice_speaker_0", resp.ClusterID)
	}
}

func TestIdentifyDegradedReturnsSentinel(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	// Empty embedding fails identification but still answers 200 with
	// the sentinel.
	w := postJSON(t, h, "/identify", identifyRequest{UserID: "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp identifyResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.ClusterID != speaker.Unknown {
		t.Errorf("cluster = %q, want %q", resp.ClusterID, speaker.Unknown)
	}
}

func TestSpeakersEndpointHidesCentroids(t *testing.T) {
	s, st, _ := newTestServer(t)
	h := s.Handler()
	ctx := context.Background()

	st.PutCluster(ctx, store.SpeakerCluster{
		UserID:         "alice",
		ClusterID:      "alice_speaker_0",
		Index:          0,
		Centroid:       []float64{0.5, 0.5},
		UtteranceCount: 4,
		AvgImportance:  0.7,
		Labels:         []string{"host"},
	})

	w := getJSON(t, h, "/speakers/alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("centroid")) {
		t.Error("centroid leaked into the API response")
	}

	var views []clusterView
	if err := json.Unmarshal(w.Body.Bytes(), &views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].UtteranceCount != 4 || views[0].Labels[0] != "host" {
		t.Errorf("views = %+v", views)
	}
}

func TestSpeakersEndpointEmptyUser(t *testing.T) {
	s, _, _ := newTestServer(t)

	var views []clusterView
	w := getJSON(t, s.Handler(), "/speakers/nobody", &views)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(views) != 0 {
		t.Errorf("views = %d, want 0", len(views))
	}
}

func TestRecentEndpoint(t *testing.T) {
	s, _, journal := newTestServer(t)
	h := s.Handler()

	var empty []pipeline.Utterance
	getJSON(t, h, "/recent", &empty)
	if len(empty) != 0 {
		t.Errorf("recent = %d, want 0", len(empty))
	}

	journal.Add(pipeline.Utterance{
		SegmentID: "seg-1",
		UserID:    "alice",
		SpeakerID: "alice_speaker_0",
		Start:     time.Now(),
		Duration:  2 * time.Second,
		SNR:       22.5,
	})

	var got []pipeline.Utterance
	getJSON(t, h, "/recent", &got)
	if len(got) != 1 {
		t.Fatalf("recent = %d, want 1", len(got))
	}
	if got[0].SpeakerID != "alice_speaker_0" {
		t.Errorf("speaker = %q", got[0].SpeakerID)
	}
}

func TestThresholdsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	vad, snr := 0.6, 15.0
	data, _ := json.Marshal(thresholdsRequest{VADThreshold: &vad, SNRThreshold: &snr})
	req := httptest.NewRequest(http.MethodPut, "/config/thresholds", bytes.NewReader(data))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := s.gate.Threshold(); got != 15.0 {
		t.Errorf("snr threshold = %f, want 15.0", got)
	}
}

func TestThresholdsRejectsOutOfRangeVAD(t *testing.T) {
	s, _, _ := newTestServer(t)

	vad := 1.5
	data, _ := json.Marshal(thresholdsRequest{VADThreshold: &vad})
	req := httptest.NewRequest(http.MethodPut, "/config/thresholds", bytes.NewReader(data))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/listen/status", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q, want *", got)
	}
}
