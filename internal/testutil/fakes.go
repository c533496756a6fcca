package testutil

import (
	"context"
	"sync"
	"time"

	"watchparty/internal/models"
)

// FakeLLM records prompts and returns a canned answer.
type FakeLLM struct {
	mu sync.Mutex

	Response string
	Err      error
	Delay    time.Duration

	Calls   int
	Systems []string
	Prompts []string
}

func (f *FakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	f.Calls++
	f.Systems = append(f.Systems, systemPrompt)
	f.Prompts = append(f.Prompts, userPrompt)
	resp, err, delay := f.Response, f.Err, f.Delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return resp, err
}

// LastPrompt returns the most recent user prompt.
func (f *FakeLLM) LastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Prompts) == 0 {
		return ""
	}
	return f.Prompts[len(f.Prompts)-1]
}

// FakeEmbedder returns a vector per text whose first component is the text length.
type FakeEmbedder struct {
	mu sync.Mutex

	Err   error
	Calls int
	Texts []string
}

func (f *FakeEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	f.Texts = append(f.Texts, texts...)
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

// FakeAnswerer answers every question with Response, after an optional gate.
type FakeAnswerer struct {
	mu sync.Mutex

	Response string
	Err      error
	// Gate, when set, blocks each Answer until it receives a value or is closed.
	Gate chan struct{}

	Requests []models.AnswerRequest
}

func (f *FakeAnswerer) Answer(ctx context.Context, req models.AnswerRequest) (string, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	resp, err, gate := f.Response, f.Err, f.Gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return resp, err
}

// LastRequest returns the most recent request and whether there was one.
func (f *FakeAnswerer) LastRequest() (models.AnswerRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Requests) == 0 {
		return models.AnswerRequest{}, false
	}
	return f.Requests[len(f.Requests)-1], true
}

// FakeStatusSource serves a fixed processing status per video URL.
type FakeStatusSource struct {
	mu       sync.Mutex
	statuses map[string]*models.VideoProcessingStatus
	Calls    int
}

func NewFakeStatusSource() *FakeStatusSource {
	return &FakeStatusSource{statuses: make(map[string]*models.VideoProcessingStatus)}
}

func (f *FakeStatusSource) Set(videoURL string, state models.ProcessingState, progress int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[videoURL] = &models.VideoProcessingStatus{VideoURL: videoURL, Status: state, Progress: progress}
}

func (f *FakeStatusSource) Status(_ context.Context, videoURL string) (*models.VideoProcessingStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if st, ok := f.statuses[videoURL]; ok {
		cp := *st
		return &cp, nil
	}
	return &models.VideoProcessingStatus{VideoURL: videoURL, Status: models.ProcessingNotStarted}, nil
}

// CallCount returns how many times Status has been called.
func (f *FakeStatusSource) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}
