package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/ocrlite/internal/pipeline"
	"github.com/MeKo-Tech/ocrlite/internal/server"
	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// theServerIsRunning starts the API on an httptest server with mock models.
func (testCtx *TestContext) theServerIsRunning() error {
	return testCtx.startServer(server.DefaultConfig())
}

func (testCtx *TestContext) theServerIsRunningWithRequestsPerMinute(n int) error {
	cfg := server.DefaultConfig()
	cfg.RequestsPerMinute = n
	return testCtx.startServer(cfg)
}

func (testCtx *TestContext) startServer(cfg server.Config) error {
	metrics := server.NewMetrics(prometheus.NewRegistry())
	p, err := MockModels(pipeline.NewBuilder()).
		WithParallelWorkers(1).
		WithObserver(metrics).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	srv, err := server.New(cfg, p, metrics)
	if err != nil {
		return err
	}
	testCtx.API = srv
	testCtx.HTTPServer = httptest.NewServer(srv.Handler())
	return nil
}

func (testCtx *TestContext) requireServer() error {
	if testCtx.HTTPServer == nil {
		return fmt.Errorf("server is not running")
	}
	return nil
}

// iSendRequest sends a request without a body.
func (testCtx *TestContext) iSendRequest(method, path string) error {
	if err := testCtx.requireServer(); err != nil {
		return err
	}
	req, err := http.NewRequest(method, testCtx.HTTPServer.URL+path, nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

// iUploadTo posts name as the multipart field to path.
func (testCtx *TestContext) iUploadTo(name, field, path string) error {
	if err := testCtx.requireServer(); err != nil {
		return err
	}
	data, err := os.ReadFile(testCtx.Path(name))
	if err != nil {
		return err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filepath.Base(name))
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, testCtx.HTTPServer.URL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) do(req *http.Request) error {
	resp, err := testCtx.HTTPServer.Client().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = resp.Header
	return nil
}

// iSendOverWebSocket sends the image as one binary frame and keeps the JSON
// reply as the last response.
func (testCtx *TestContext) iSendOverWebSocket(name string) error {
	if err := testCtx.requireServer(); err != nil {
		return err
	}
	data, err := os.ReadFile(testCtx.Path(name))
	if err != nil {
		return err
	}
	url := "ws" + strings.TrimPrefix(testCtx.HTTPServer.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer func() { _ = conn.Close() }()
	testCtx.LastHTTPHeaders = resp.Header

	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return err
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(msg)
	return nil
}

func (testCtx *TestContext) theResponseStatusShouldBe(code int) error {
	if testCtx.LastHTTPStatusCode != code {
		return fmt.Errorf("status %d, want %d\nBody: %s", testCtx.LastHTTPStatusCode, code, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain %q\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

// theResponseFieldShouldBe compares a top level string field of a JSON body.
func (testCtx *TestContext) theResponseFieldShouldBe(field, want string) error {
	var obj map[string]any
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &obj); err != nil {
		return fmt.Errorf("response is not a JSON object: %w", err)
	}
	got, ok := obj[field]
	if !ok {
		return fmt.Errorf("response has no field %q", field)
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("field %q is %q, want %q", field, got, want)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBeSet(name string) error {
	if testCtx.LastHTTPHeaders.Get(name) == "" {
		return fmt.Errorf("response header %s is not set", name)
	}
	return nil
}

// RegisterServerSteps registers the HTTP API steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the OCR server is running$`, testCtx.theServerIsRunning)
	sc.Step(`^the OCR server is running with a limit of (\d+) requests? per minute$`,
		testCtx.theServerIsRunningWithRequestsPerMinute)
	sc.Step(`^I send a (GET|POST|OPTIONS) request to "([^"]*)"$`, testCtx.iSendRequest)
	sc.Step(`^I upload "([^"]*)" as "([^"]*)" to "([^"]*)"$`, testCtx.iUploadTo)
	sc.Step(`^I send "([^"]*)" over the WebSocket$`, testCtx.iSendOverWebSocket)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseFieldShouldBe)
	sc.Step(`^the response header "([^"]*)" should be set$`, testCtx.theResponseHeaderShouldBeSet)
}
