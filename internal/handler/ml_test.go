package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mintwatch/internal/domain"
	"mintwatch/internal/ml/common"
	"mintwatch/internal/ml/training"
)

func TestGetPredictionsWithoutDatabaseIs503(t *testing.T) {
	r := newTestRouter(newTestHandler(&fakeResolver{}, &fakeTracker{}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/ml/predictions/ethereum/"+testAddr, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d, want 503", w.Code)
	}
}

func TestGetPredictionsServesLatest(t *testing.T) {
	h := newTestHandler(&fakeResolver{}, &fakeTracker{})
	h.SetPredictionReader(&fakePredReader{preds: []domain.WinPrediction{
		{ModelKey: common.ModelKeyLogReg, WinProb: 0.72},
		{ModelKey: common.ModelKeyXGBoost, WinProb: 0.64},
	}})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/ml/predictions/ethereum/"+testAddr, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count       int                    `json:"count"`
		Predictions []domain.WinPrediction `json:"predictions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if resp.Count != 2 || resp.Predictions[0].WinProb != 0.72 {
		t.Fatalf("got response %+v", resp)
	}
}

func TestGetModelInfoListsBothFamilies(t *testing.T) {
	h := newTestHandler(&fakeResolver{}, &fakeTracker{})
	h.SetModelRegistry(&fakeModelRegistry{history: map[string][]domain.MLModelVersion{
		common.ModelKeyLogReg:  {{ModelKey: common.ModelKeyLogReg, Version: 3, IsActive: true}},
		common.ModelKeyXGBoost: {{ModelKey: common.ModelKeyXGBoost, Version: 2, IsActive: true}},
	}})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/ml/model", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp struct {
		FeatureSpecVersion int                                `json:"feature_spec_version"`
		Models             map[string][]domain.MLModelVersion `json:"models"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if resp.FeatureSpecVersion != common.FeatureSpecVersion {
		t.Fatalf("got feature_spec_version %d, want %d", resp.FeatureSpecVersion, common.FeatureSpecVersion)
	}
	if len(resp.Models[common.ModelKeyLogReg]) != 1 || len(resp.Models[common.ModelKeyXGBoost]) != 1 {
		t.Fatalf("got models %+v, want one version per family", resp.Models)
	}
}

func TestTriggerTrainingDisabledIs503(t *testing.T) {
	r := newTestRouter(newTestHandler(&fakeResolver{}, &fakeTracker{}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/ml/train", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("got status %d, want 503", w.Code)
	}
}

func TestTriggerTrainingRunsAllModels(t *testing.T) {
	trainer := &fakeTrainer{results: []training.ModelTrainResult{
		{ModelKey: common.ModelKeyLogReg, Version: 4, AUC: 0.81, Promoted: true},
		{ModelKey: common.ModelKeyXGBoost, Version: 4, AUC: 0.66, Promoted: false},
	}}
	h := newTestHandler(&fakeResolver{}, &fakeTracker{})
	h.SetTrainingRunner(trainer)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/ml/train", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", w.Code, w.Body.String())
	}
	if trainer.calls != 1 {
		t.Fatalf("trainer called %d times, want 1", trainer.calls)
	}
	var resp struct {
		Status  string `json:"status"`
		Trained int    `json:"trained"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if resp.Status != "ok" || resp.Trained != 2 {
		t.Fatalf("got response %+v", resp)
	}
}

func TestTriggerTrainingErrorIs500(t *testing.T) {
	h := newTestHandler(&fakeResolver{}, &fakeTracker{})
	h.SetTrainingRunner(&fakeTrainer{err: errBoom})
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/ml/train", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", w.Code)
	}
}
