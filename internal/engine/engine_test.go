package engine

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"nyaya/engine/internal/errinfo"
	"nyaya/engine/internal/llm"
)

type testGemini struct {
	validateErr error
	chatErr     error
	fake        *fakeGemini
}

func (c *testGemini) ValidateKey(ctx context.Context, apiKey string) error {
	return c.validateErr
}

func (c *testGemini) Chat(ctx context.Context, apiKey, model string, messages []llm.Message) (string, error) {
	if c.chatErr != nil {
		return "", c.chatErr
	}
	if c.fake == nil {
		c.fake = newFakeGemini()
	}
	return c.fake.Chat(ctx, apiKey, model, messages)
}

type notificationLog struct {
	mu      sync.Mutex
	methods []string
	params  []any
}

func (l *notificationLog) notify(method string, params any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.methods = append(l.methods, method)
	l.params = append(l.params, params)
}

func (l *notificationLog) count(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.methods {
		if m == method {
			n++
		}
	}
	return n
}

func newTestEngine(t *testing.T, client LLMClient) *Engine {
	t.Helper()
	t.Setenv("NYAYA_DATA_DIR", t.TempDir())
	eng, err := New(WithProviderClient(ProviderGoogle, client))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return eng
}

func mustJSON(t *testing.T, payload any) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func waitNotNegotiating(t *testing.T, eng *Engine, sessionID string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		result, errInfo := eng.NegotiationGetState(context.Background(), mustJSON(t, map[string]any{"session_id": sessionID}))
		if errInfo != nil {
			t.Fatalf("get state: %+v", errInfo)
		}
		state := result.(map[string]any)
		if state["negotiating"] == false {
			return state
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("negotiation did not finish in time")
	return nil
}

const annotatedContract = "Begin. " +
	"-hr-The Vendor may terminate at will.-hr- " +
	"-sg-Either party may terminate with 30 days written notice.-sg- " +
	"-ipc-Indian Contract Act 1872, Sec 14-ipc- " +
	"Middle. " +
	"-mr-All disputes are resolved in the Vendor's home state.-mr- " +
	"-sg-Disputes are resolved by neutral arbitration.-sg- " +
	"-ipc-not found-ipc- " +
	"End."

func TestEngineNegotiationFlow(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, &testGemini{})
	log := &notificationLog{}
	eng.SetNotifier(log.notify)

	if _, errInfo := eng.ProvidersSetApiKey(ctx, mustJSON(t, map[string]any{"provider_id": "google", "api_key": "test-key"})); errInfo != nil {
		t.Fatalf("set key: %+v", errInfo)
	}
	if _, errInfo := eng.ProvidersValidate(ctx, mustJSON(t, map[string]any{"provider_id": "google"})); errInfo != nil {
		t.Fatalf("validate: %+v", errInfo)
	}
	roundsResp, errInfo := eng.SettingsSetDebateRounds(ctx, mustJSON(t, map[string]any{"debate_rounds": 1}))
	if errInfo != nil {
		t.Fatalf("set rounds: %+v", errInfo)
	}
	if roundsResp.(map[string]any)["debate_rounds"] != 1 {
		t.Fatalf("rounds not applied: %v", roundsResp)
	}

	createResp, errInfo := eng.SessionCreate(ctx, mustJSON(t, map[string]any{"document": annotatedContract}))
	if errInfo != nil {
		t.Fatalf("create session: %+v", errInfo)
	}
	created := createResp.(map[string]any)
	sessionID := created["session_id"].(string)
	document := created["document"].(string)
	if !strings.Contains(document, `data-risk-id="risk-0"`) || !strings.Contains(document, `data-risk-id="risk-1"`) {
		t.Fatalf("decoded document missing risk markers:\n%s", document)
	}
	if strings.Contains(document, "-hr-") || strings.Contains(document, "-sg-") {
		t.Fatalf("marker tags leaked into decoded document:\n%s", document)
	}

	startResp, errInfo := eng.NegotiationStart(ctx, mustJSON(t, map[string]any{"session_id": sessionID}))
	if errInfo != nil {
		t.Fatalf("start: %+v", errInfo)
	}
	if startResp.(map[string]any)["batch_id"] == "" {
		t.Fatalf("missing batch id: %v", startResp)
	}

	state := waitNotNegotiating(t, eng, sessionID)
	batch := toMap(t, state["batch"])
	if batch["status"] != "reviewing" {
		t.Fatalf("batch status %v", batch["status"])
	}
	entries := batch["entries"].(map[string]any)
	for _, id := range []string{"risk-0", "risk-1"} {
		entry := entries[id].(map[string]any)
		if entry["balanced_clause"] == nil || entry["balanced_clause"] == "" {
			t.Fatalf("finding %s has no verdict: %v", id, entry)
		}
	}
	// 1 round per finding: start, a, b, verdict, twice, plus done.
	if got := log.count(notificationNegotiationEvent); got != 9 {
		t.Fatalf("expected 9 negotiation events, got %d", got)
	}

	if _, errInfo := eng.EntrySetDecision(ctx, mustJSON(t, map[string]any{"session_id": sessionID, "finding_id": "risk-0", "decision": "accepted"})); errInfo != nil {
		t.Fatalf("accept: %+v", errInfo)
	}
	if _, errInfo := eng.EntrySetDecision(ctx, mustJSON(t, map[string]any{"session_id": sessionID, "finding_id": "risk-1", "decision": "rejected"})); errInfo != nil {
		t.Fatalf("reject: %+v", errInfo)
	}

	draftResp, errInfo := eng.DraftGenerate(ctx, mustJSON(t, map[string]any{"session_id": sessionID}))
	if errInfo != nil {
		t.Fatalf("draft: %+v", errInfo)
	}
	draftData := draftResp.(map[string]any)
	finalDraft := draftData["draft"].(string)
	if !strings.Contains(finalDraft, `<mark data-negotiated="accepted">Either party may terminate with 30 days written notice.</mark>`) {
		t.Fatalf("accepted rewrite missing from draft:\n%s", finalDraft)
	}
	if !strings.Contains(finalDraft, "All disputes are resolved in the Vendor's home state.") {
		t.Fatalf("rejected clause should stay original:\n%s", finalDraft)
	}
	if strings.Contains(finalDraft, "data-risk-id") {
		t.Fatalf("risk markers leaked into draft:\n%s", finalDraft)
	}
	if draftData["message"] != "1 of 2 changes applied" {
		t.Fatalf("draft message: %v", draftData["message"])
	}

	diffResp, errInfo := eng.DraftGetTextDiff(ctx, mustJSON(t, map[string]any{"session_id": sessionID}))
	if errInfo != nil {
		t.Fatalf("diff: %+v", errInfo)
	}
	if diffResp.(map[string]any)["truncated"] != false {
		t.Fatalf("diff unexpectedly truncated")
	}
}

func TestNegotiationStartRequiresConfiguredKey(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, &testGemini{})

	createResp, errInfo := eng.SessionCreate(ctx, mustJSON(t, map[string]any{"document": annotatedContract}))
	if errInfo != nil {
		t.Fatalf("create: %+v", errInfo)
	}
	sessionID := createResp.(map[string]any)["session_id"].(string)

	_, errInfo = eng.NegotiationStart(ctx, mustJSON(t, map[string]any{"session_id": sessionID}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeProviderNotConfigured {
		t.Fatalf("expected PROVIDER_NOT_CONFIGURED, got %+v", errInfo)
	}
}

func TestNegotiationStartRejectsUnknownFinding(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, &testGemini{})
	if _, errInfo := eng.ProvidersSetApiKey(ctx, mustJSON(t, map[string]any{"provider_id": "google", "api_key": "k"})); errInfo != nil {
		t.Fatalf("set key: %+v", errInfo)
	}
	createResp, errInfo := eng.SessionCreate(ctx, mustJSON(t, map[string]any{"document": annotatedContract}))
	if errInfo != nil {
		t.Fatalf("create: %+v", errInfo)
	}
	sessionID := createResp.(map[string]any)["session_id"].(string)

	_, errInfo = eng.NegotiationStart(ctx, mustJSON(t, map[string]any{"session_id": sessionID, "risk_ids": []string{"risk-9"}}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeValidationFailed {
		t.Fatalf("expected VALIDATION_FAILED, got %+v", errInfo)
	}
}

func TestSessionNotFound(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, &testGemini{})
	_, errInfo := eng.SessionGet(ctx, mustJSON(t, map[string]any{"session_id": "missing"}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeSessionNotFound {
		t.Fatalf("expected SESSION_NOT_FOUND, got %+v", errInfo)
	}
}

func TestSessionCloseRemovesSession(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, &testGemini{})
	createResp, errInfo := eng.SessionCreate(ctx, mustJSON(t, map[string]any{"document": annotatedContract}))
	if errInfo != nil {
		t.Fatalf("create: %+v", errInfo)
	}
	sessionID := createResp.(map[string]any)["session_id"].(string)
	if _, errInfo := eng.SessionClose(ctx, mustJSON(t, map[string]any{"session_id": sessionID})); errInfo != nil {
		t.Fatalf("close: %+v", errInfo)
	}
	if _, errInfo := eng.SessionGet(ctx, mustJSON(t, map[string]any{"session_id": sessionID})); errInfo == nil {
		t.Fatalf("closed session should be gone")
	}
}

func TestProvidersValidateAuthFailure(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, &testGemini{validateErr: llm.ErrUnauthorized})
	if _, errInfo := eng.ProvidersSetApiKey(ctx, mustJSON(t, map[string]any{"provider_id": "google", "api_key": "bad"})); errInfo != nil {
		t.Fatalf("set key: %+v", errInfo)
	}
	_, errInfo := eng.ProvidersValidate(ctx, mustJSON(t, map[string]any{"provider_id": "google"}))
	if errInfo == nil || errInfo.ErrorCode != errinfo.CodeProviderAuthFailed {
		t.Fatalf("expected PROVIDER_AUTH_FAILED, got %+v", errInfo)
	}
}

func TestSettingsDebateRoundsValidation(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, &testGemini{})
	for _, rounds := range []int{0, 6, -1} {
		_, errInfo := eng.SettingsSetDebateRounds(ctx, mustJSON(t, map[string]any{"debate_rounds": rounds}))
		if errInfo == nil || errInfo.ErrorCode != errinfo.CodeValidationFailed {
			t.Fatalf("rounds %d: expected VALIDATION_FAILED, got %+v", rounds, errInfo)
		}
	}
	resp, errInfo := eng.SettingsGetDebateRounds(ctx, nil)
	if errInfo != nil {
		t.Fatalf("get rounds: %+v", errInfo)
	}
	if resp.(map[string]any)["debate_rounds"] != 3 {
		t.Fatalf("default rounds: %v", resp)
	}
}

type blockingGemini struct {
	started chan struct{}
}

func (c *blockingGemini) ValidateKey(ctx context.Context, apiKey string) error { return nil }

func (c *blockingGemini) Chat(ctx context.Context, apiKey, model string, messages []llm.Message) (string, error) {
	select {
	case c.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func TestNegotiationCancel(t *testing.T) {
	ctx := context.Background()
	client := &blockingGemini{started: make(chan struct{}, 1)}
	eng := newTestEngine(t, client)
	if _, errInfo := eng.ProvidersSetApiKey(ctx, mustJSON(t, map[string]any{"provider_id": "google", "api_key": "k"})); errInfo != nil {
		t.Fatalf("set key: %+v", errInfo)
	}
	createResp, errInfo := eng.SessionCreate(ctx, mustJSON(t, map[string]any{"document": annotatedContract}))
	if errInfo != nil {
		t.Fatalf("create: %+v", errInfo)
	}
	sessionID := createResp.(map[string]any)["session_id"].(string)
	if _, errInfo := eng.NegotiationStart(ctx, mustJSON(t, map[string]any{"session_id": sessionID})); errInfo != nil {
		t.Fatalf("start: %+v", errInfo)
	}
	select {
	case <-client.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("negotiation never reached the provider")
	}
	if _, errInfo := eng.NegotiationCancel(ctx, mustJSON(t, map[string]any{"session_id": sessionID})); errInfo != nil {
		t.Fatalf("cancel: %+v", errInfo)
	}
	state := waitNotNegotiating(t, eng, sessionID)
	batch := toMap(t, state["batch"])
	if batch["status"] != "error" || batch["error_message"] != "negotiation canceled" {
		t.Fatalf("canceled batch state: %v", batch)
	}
}

func TestEngineSingleFindingOneRound(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, &testGemini{})
	log := &notificationLog{}
	eng.SetNotifier(log.notify)
	if _, errInfo := eng.ProvidersSetApiKey(ctx, mustJSON(t, map[string]any{"provider_id": "google", "api_key": "k"})); errInfo != nil {
		t.Fatalf("set key: %+v", errInfo)
	}

	doc := "-hr-The Vendor may terminate at will.-hr- " +
		"-sg-Require 30 days notice-sg- " +
		"-ipc-Indian Contract Act 1872, Sec 14-ipc-"
	createResp, errInfo := eng.SessionCreate(ctx, mustJSON(t, map[string]any{"document": doc}))
	if errInfo != nil {
		t.Fatalf("create: %+v", errInfo)
	}
	created := createResp.(map[string]any)
	sessionID := created["session_id"].(string)
	findings := toMap(t, created)["findings"].([]any)
	if len(findings) != 1 {
		t.Fatalf("expected one finding, got %d", len(findings))
	}
	finding := findings[0].(map[string]any)
	if finding["level"] != "high" ||
		finding["clause_text"] != "The Vendor may terminate at will." ||
		finding["suggestion_text"] != "Require 30 days notice" ||
		finding["citation_text"] != "Indian Contract Act 1872, Sec 14" {
		t.Fatalf("finding fields wrong: %v", finding)
	}

	if _, errInfo := eng.NegotiationStart(ctx, mustJSON(t, map[string]any{"session_id": sessionID, "rounds": 1})); errInfo != nil {
		t.Fatalf("start: %+v", errInfo)
	}
	waitNotNegotiating(t, eng, sessionID)
	// debate_start, party_a, party_b, judge_verdict, done.
	if got := log.count(notificationNegotiationEvent); got != 5 {
		t.Fatalf("expected 5 events, got %d", got)
	}

	if _, errInfo := eng.EntrySetDecision(ctx, mustJSON(t, map[string]any{"session_id": sessionID, "finding_id": "risk-0", "decision": "accepted"})); errInfo != nil {
		t.Fatalf("accept: %+v", errInfo)
	}
	draftResp, errInfo := eng.DraftGenerate(ctx, mustJSON(t, map[string]any{"session_id": sessionID}))
	if errInfo != nil {
		t.Fatalf("draft: %+v", errInfo)
	}
	draftData := draftResp.(map[string]any)
	if draftData["message"] != "1 of 1 changes applied" {
		t.Fatalf("draft message: %v", draftData["message"])
	}
	if !strings.Contains(draftData["draft"].(string), `<mark data-negotiated="accepted">Require 30 days notice</mark>`) {
		t.Fatalf("balanced clause missing from draft:\n%s", draftData["draft"])
	}
}

type restartGemini struct {
	mu         sync.Mutex
	blockFirst bool
	started    chan struct{}
	fake       *fakeGemini
}

func (c *restartGemini) ValidateKey(ctx context.Context, apiKey string) error { return nil }

func (c *restartGemini) Chat(ctx context.Context, apiKey, model string, messages []llm.Message) (string, error) {
	c.mu.Lock()
	if c.blockFirst {
		c.blockFirst = false
		c.mu.Unlock()
		c.started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	}
	if c.fake == nil {
		c.fake = newFakeGemini()
	}
	fake := c.fake
	c.mu.Unlock()
	return fake.Chat(ctx, apiKey, model, messages)
}

func TestNegotiationRestartCancelsPreviousBatch(t *testing.T) {
	ctx := context.Background()
	client := &restartGemini{blockFirst: true, started: make(chan struct{}, 1)}
	eng := newTestEngine(t, client)
	if _, errInfo := eng.ProvidersSetApiKey(ctx, mustJSON(t, map[string]any{"provider_id": "google", "api_key": "k"})); errInfo != nil {
		t.Fatalf("set key: %+v", errInfo)
	}
	createResp, errInfo := eng.SessionCreate(ctx, mustJSON(t, map[string]any{"document": annotatedContract}))
	if errInfo != nil {
		t.Fatalf("create: %+v", errInfo)
	}
	sessionID := createResp.(map[string]any)["session_id"].(string)

	firstResp, errInfo := eng.NegotiationStart(ctx, mustJSON(t, map[string]any{"session_id": sessionID, "rounds": 1}))
	if errInfo != nil {
		t.Fatalf("first start: %+v", errInfo)
	}
	firstBatch := firstResp.(map[string]any)["batch_id"].(string)
	select {
	case <-client.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("first batch never reached the provider")
	}

	secondResp, errInfo := eng.NegotiationStart(ctx, mustJSON(t, map[string]any{"session_id": sessionID, "rounds": 1}))
	if errInfo != nil {
		t.Fatalf("second start: %+v", errInfo)
	}
	secondBatch := secondResp.(map[string]any)["batch_id"].(string)
	if secondBatch == firstBatch {
		t.Fatalf("restart must create a fresh batch")
	}

	state := waitNotNegotiating(t, eng, sessionID)
	batch := toMap(t, state["batch"])
	if batch["id"] != secondBatch || batch["status"] != "reviewing" {
		t.Fatalf("second batch did not complete: %v", batch)
	}
}

// toMap round-trips a value through JSON so tests can inspect structs the way
// the consumer sees them on the wire.
func toMap(t *testing.T, value any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return decoded
}
