package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/MrCodeEU/facepca/pkg/logging"
	"github.com/MrCodeEU/facepca/pkg/recognition"
)

// LabelResponse is one person of the corpus.
type LabelResponse struct {
	Name  string `json:"name"`
	Faces int    `json:"faces"`
}

// AccuracyResponse is the held-out accuracy of the loaded corpus.
type AccuracyResponse struct {
	Fingerprint string  `json:"fingerprint"`
	Accuracy    float64 `json:"accuracy"`
	Rank        int     `json:"rank"`
	TrainSize   int     `json:"train_size"`
	TestSize    int     `json:"test_size"`
}

// RecognizeResponse lists the faces found in an uploaded image.
type RecognizeResponse struct {
	RunID      string                  `json:"run_id"`
	Width      int                     `json:"width"`
	Height     int                     `json:"height"`
	Detections []recognition.Detection `json:"detections"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) labels(w http.ResponseWriter, r *http.Request) {
	names, counts := s.annotator.Context().Corpus().Distinct()

	out := make([]LabelResponse, len(names))
	for i, name := range names {
		out[i] = LabelResponse{Name: name, Faces: counts[name]}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) accuracy(w http.ResponseWriter, r *http.Request) {
	summary, err := s.cache.Summary(s.annotator.Context().Corpus())
	if err != nil {
		logging.Component("server").WithError(err).Error("Accuracy evaluation failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, AccuracyResponse{
		Fingerprint: summary.Fingerprint,
		Accuracy:    summary.Accuracy,
		Rank:        summary.Rank,
		TrainSize:   summary.TrainSize,
		TestSize:    summary.TestSize,
	})
}

func (s *Server) evaluation(w http.ResponseWriter, r *http.Request) {
	report, err := s.cache.Report(s.annotator.Context().Corpus())
	if err != nil {
		logging.Component("server").WithError(err).Error("Evaluation failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// readImage decodes the "image" field of a multipart upload.
func readImage(w http.ResponseWriter, r *http.Request) (image.Image, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image is required")
		return nil, false
	}
	defer file.Close()

	img, err := imaging.Decode(file, imaging.AutoOrientation(true))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to decode image "+header.Filename)
		return nil, false
	}
	return img, true
}

func (s *Server) recognize(w http.ResponseWriter, r *http.Request) {
	img, ok := readImage(w, r)
	if !ok {
		return
	}

	runID := uuid.New().String()
	detections, err := s.annotator.Detect(img)
	if err != nil {
		logging.Component("server").WithError(err).WithField("run_id", runID).Error("Recognition failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if detections == nil {
		detections = []recognition.Detection{}
	}

	b := img.Bounds()
	respondJSON(w, http.StatusOK, RecognizeResponse{
		RunID:      runID,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Detections: detections,
	})
}

func (s *Server) annotate(w http.ResponseWriter, r *http.Request) {
	img, ok := readImage(w, r)
	if !ok {
		return
	}

	runID := uuid.New().String()
	out, detections, err := s.annotator.Annotate(img)
	if err != nil {
		logging.Component("server").WithError(err).WithField("run_id", runID).Error("Annotation failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode image")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Run-ID", runID)
	w.Header().Set("X-Faces", strconv.Itoa(len(detections)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
