package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"arena-agent/internal/action"
	"arena-agent/internal/config"
)

func serviceConfig(url string) config.ServiceConfig {
	return config.ServiceConfig{URL: url, TimeoutSeconds: 2}
}

func TestNLU_Interpret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/interpret" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["utterance"] != "pick up the mug" {
			t.Errorf("utterance not forwarded: %v", req["utterance"])
		}
		json.NewEncoder(w).Encode(InterpretResult{Kind: "act", Entity: "mug", ActionType: "Pickup"})
	}))
	defer srv.Close()

	n := NewNLU(serviceConfig(srv.URL))
	res, err := n.Interpret(context.Background(), "pick up the mug", nil)
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if res.Kind != "act" || res.Entity != "mug" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestTextFilter_DegradesOnFailure(t *testing.T) {
	f := NewProfanityFilter(serviceConfig("http://127.0.0.1:1")) // nothing listens
	match, err := f.Check(context.Background(), "hello")
	if err != nil {
		t.Fatalf("degraded filter must not error: %v", err)
	}
	if match {
		t.Errorf("degraded verdict must be negative")
	}
}

func TestTextFilter_PositiveVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"match": true})
	}))
	defer srv.Close()

	f := NewProfanityFilter(serviceConfig(srv.URL))
	match, err := f.Check(context.Background(), "bad words")
	if err != nil || !match {
		t.Errorf("expected positive verdict, got match=%v err=%v", match, err)
	}
}

func TestConfirmationClassifier_UnknownVerdictIsOther(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"verdict": "shrug"})
	}))
	defer srv.Close()

	c := NewConfirmationClassifier(serviceConfig(srv.URL))
	v, err := c.Classify(context.Background(), "maybe")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if v != VerdictOther {
		t.Errorf("expected other, got %q", v)
	}
}

func TestDetectedObject_Area(t *testing.T) {
	d := DetectedObject{Box: [4]float64{10, 10, 30, 50}}
	if d.Area() != 800 {
		t.Errorf("expected 800, got %v", d.Area())
	}
}

func TestDecodeAction_Motion(t *testing.T) {
	a, err := DecodeAction(1, "rotate left")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	m := a.Payload.(action.MotionPayload)
	if a.Type != action.TypeRotate || m.Direction != action.DirLeft || m.Magnitude != 90 {
		t.Errorf("unexpected action %+v", a)
	}
}

func TestDecodeAction_GotoObject(t *testing.T) {
	a, err := DecodeAction(2, "goto object red mug")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Type != action.TypeGotoObject || a.Payload.(action.GotoPayload).Object != "red mug" {
		t.Errorf("unexpected action %+v", a)
	}
}

func TestDecodeAction_PickupWithImageIndex(t *testing.T) {
	a, err := DecodeAction(3, "pickup mug 2")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := a.Payload.(action.ObjectPayload)
	if p.Name != "mug" || p.ColorImageIndex != 2 {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestDecodeAction_Garbage(t *testing.T) {
	for _, raw := range []string{"", "flarp left", "rotate sideways", "goto nowhere"} {
		if _, err := DecodeAction(1, raw); err == nil {
			t.Errorf("expected decode error for %q", raw)
		}
	}
}

func TestRegistry_CheckAllFailsClosed(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	cfg := &config.Config{}
	cfg.Services.FeatureExtractor = serviceConfig(healthy.URL)
	cfg.Services.NLU = serviceConfig(healthy.URL)
	cfg.Services.ActionGenerator = serviceConfig(healthy.URL)
	cfg.Services.VisualGrounding = serviceConfig(healthy.URL)
	cfg.Services.Profanity = serviceConfig(healthy.URL)
	cfg.Services.OutOfDomain = serviceConfig(healthy.URL)
	cfg.Services.ConfirmationClassifier = serviceConfig(healthy.URL)
	cfg.Services.InstructionSplitter = serviceConfig("http://127.0.0.1:1") // down

	r := NewRegistry(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.CheckAll(ctx); err == nil {
		t.Errorf("one unhealthy collaborator must fail the whole check")
	}

	cfg.Services.InstructionSplitter = serviceConfig(healthy.URL)
	r = NewRegistry(cfg)
	if err := r.CheckAll(ctx); err != nil {
		t.Errorf("all healthy collaborators should pass: %v", err)
	}
}

func TestRegistry_StatusNamesEveryService(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	cfg := &config.Config{}
	for _, set := range []*config.ServiceConfig{
		&cfg.Services.FeatureExtractor, &cfg.Services.NLU, &cfg.Services.ActionGenerator,
		&cfg.Services.VisualGrounding, &cfg.Services.Profanity, &cfg.Services.OutOfDomain,
		&cfg.Services.ConfirmationClassifier, &cfg.Services.InstructionSplitter,
	} {
		*set = serviceConfig(healthy.URL)
	}
	r := NewRegistry(cfg)
	status := r.Status(context.Background())
	if len(status) != 8 {
		t.Fatalf("expected 8 services in status, got %d", len(status))
	}
	for name, s := range status {
		if s != "ok" {
			t.Errorf("service %s not ok: %s", name, s)
		}
	}
}
