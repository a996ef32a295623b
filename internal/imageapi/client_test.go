package imageapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"easel/internal/imageapi"
	"easel/internal/transport"
)

func newAPIClient(t *testing.T, handler http.Handler) (*imageapi.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	tp, err := transport.New(server.URL, nil, nil, nil)
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	return imageapi.NewClient(tp, nil), server
}

func TestLoginReturnsToken(t *testing.T) {
	client, _ := newAPIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["username"] != "alice" || body["password"] != "secret" {
			t.Errorf("unexpected credentials: %v", body)
		}
		json.NewEncoder(w).Encode(imageapi.Token{AccessToken: "tok", TokenType: "bearer", ExpiresIn: 3600})
	}))

	token, err := client.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if token.AccessToken != "tok" {
		t.Fatalf("unexpected token: %+v", token)
	}
}

func TestLoginRejectsEmptyTokenResponse(t *testing.T) {
	client, _ := newAPIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	if _, err := client.Login(context.Background(), "alice", "secret"); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestSubmitTextToImageSendsAsyncForm(t *testing.T) {
	var form map[string]string
	client, _ := newAPIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-to-image" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = make(map[string]string)
		for key, values := range r.MultipartForm.Value {
			form[key] = values[0]
		}
		json.NewEncoder(w).Encode(imageapi.SubmitResponse{
			TaskID:    "task-1",
			QueueInfo: imageapi.QueueInfo{PendingTasks: 2, RunningTasks: 1},
		})
	}))

	resp, err := client.SubmitTextToImage(context.Background(), imageapi.TextToImageRequest{
		Prompt:         "a lighthouse at dusk",
		NegativePrompt: "blurry",
		AspectRatio:    "16:9",
		InferenceSteps: 40,
		CFGScale:       4.5,
		Seed:           -1,
		NumImages:      3,
	})
	if err != nil {
		t.Fatalf("SubmitTextToImage returned error: %v", err)
	}
	if resp.TaskID != "task-1" || resp.QueueInfo.PendingTasks != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	expect := map[string]string{
		"prompt":              "a lighthouse at dusk",
		"negative_prompt":     "blurry",
		"aspect_ratio":        "16:9",
		"num_inference_steps": "40",
		"true_cfg_scale":      "4.5",
		"seed":                "-1",
		"num_images":          "3",
		"async_mode":          "true",
	}
	for key, want := range expect {
		if form[key] != want {
			t.Fatalf("form[%s] = %q, want %q", key, form[key], want)
		}
	}
}

func TestSubmitTextToImageRequiresPrompt(t *testing.T) {
	client, _ := newAPIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent")
	}))
	if _, err := client.SubmitTextToImage(context.Background(), imageapi.TextToImageRequest{Prompt: "  "}); err == nil {
		t.Fatal("expected prompt validation error")
	}
}

func TestSubmitImageEditSendsRepeatedImagesField(t *testing.T) {
	dir := t.TempDir()
	first := dir + "/base.png"
	second := dir + "/overlay.png"
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte("fake-png"), 0o644); err != nil {
			t.Fatalf("write image: %v", err)
		}
	}

	var form map[string]string
	var uploads []string
	var strayImageField bool
	client, _ := newAPIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/image-edit" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = make(map[string]string)
		for key, values := range r.MultipartForm.Value {
			form[key] = values[0]
		}
		for _, file := range r.MultipartForm.File["images"] {
			uploads = append(uploads, file.Filename)
		}
		_, strayImageField = r.MultipartForm.File["image"]
		json.NewEncoder(w).Encode(imageapi.SubmitResponse{TaskID: "task-4"})
	}))

	_, err := client.SubmitImageEdit(context.Background(), imageapi.ImageEditRequest{
		ImagePaths:     []string{first, second},
		Prompt:         "blend the two scenes",
		NegativePrompt: "artifacts",
		InferenceSteps: 30,
		CFGScale:       4.0,
		GuidanceScale:  1.5,
		Seed:           7,
		NumImages:      2,
	})
	if err != nil {
		t.Fatalf("SubmitImageEdit returned error: %v", err)
	}
	if len(uploads) != 2 || uploads[0] != "base.png" || uploads[1] != "overlay.png" {
		t.Fatalf("unexpected uploads under images field: %v", uploads)
	}
	if strayImageField {
		t.Fatal("file part sent under image field instead of images")
	}
	expect := map[string]string{
		"prompt":              "blend the two scenes",
		"negative_prompt":     "artifacts",
		"num_inference_steps": "30",
		"true_cfg_scale":      "4",
		"guidance_scale":      "1.5",
		"seed":                "7",
		"num_images":          "2",
		"async_mode":          "true",
	}
	for key, want := range expect {
		if form[key] != want {
			t.Fatalf("form[%s] = %q, want %q", key, form[key], want)
		}
	}
}

func TestSubmitImageEditRejectsTooManySources(t *testing.T) {
	client, _ := newAPIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent")
	}))
	_, err := client.SubmitImageEdit(context.Background(), imageapi.ImageEditRequest{
		ImagePaths: []string{"a.png", "b.png", "c.png"},
		Prompt:     "too many",
	})
	if err == nil {
		t.Fatal("expected source count validation error")
	}
}

func TestSubmitBatchEditJoinsPrompts(t *testing.T) {
	dir := t.TempDir()
	imagePath := dir + "/source.png"
	if err := os.WriteFile(imagePath, []byte("fake-png"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	var prompts, filename string
	client, _ := newAPIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/image-edit/batch" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		prompts = r.MultipartForm.Value["prompts"][0]
		if files := r.MultipartForm.File["image"]; len(files) == 1 {
			filename = files[0].Filename
		}
		json.NewEncoder(w).Encode(imageapi.SubmitResponse{TaskID: "task-2"})
	}))

	_, err := client.SubmitBatchEdit(context.Background(), imageapi.BatchEditRequest{
		ImagePath: imagePath,
		Prompts:   []string{"make it rain", "make it snow"},
	})
	if err != nil {
		t.Fatalf("SubmitBatchEdit returned error: %v", err)
	}
	if prompts != "make it rain|make it snow" {
		t.Fatalf("unexpected prompts field: %q", prompts)
	}
	if filename != "source.png" {
		t.Fatalf("unexpected upload filename: %q", filename)
	}
}

func TestSubmitBatchEditRejectsSeparatorInPrompt(t *testing.T) {
	client, _ := newAPIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent")
	}))
	_, err := client.SubmitBatchEdit(context.Background(), imageapi.BatchEditRequest{
		ImagePath: "whatever.png",
		Prompts:   []string{"a|b"},
	})
	if err == nil {
		t.Fatal("expected separator validation error")
	}
}

func TestResultPassesWaitQuery(t *testing.T) {
	var rawQuery string
	client, _ := newAPIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("binary"))
	}))

	resp, err := client.Result(context.Background(), "task-3", true, 120*time.Second)
	if err != nil {
		t.Fatalf("Result returned error: %v", err)
	}
	resp.Body.Close()
	if rawQuery != "timeout=120&wait=true" {
		t.Fatalf("unexpected query: %q", rawQuery)
	}
}

func TestQuotaDecodesAllowance(t *testing.T) {
	client, _ := newAPIClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tasks/quota/me" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"daily_limit":50,"monthly_limit":500,"used_today":40,"remaining_today":10,"remaining_this_month":460}`))
	}))

	quota, err := client.Quota(context.Background())
	if err != nil {
		t.Fatalf("Quota returned error: %v", err)
	}
	if quota.RemainingToday != 10 || quota.DailyLimit != 50 {
		t.Fatalf("unexpected quota: %+v", quota)
	}
}
