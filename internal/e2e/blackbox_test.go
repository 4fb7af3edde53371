//go:build integration
// +build integration

package e2e

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func projectRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// <root>/internal/e2e/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func goBuild(t *testing.T, out, pkg string) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), out)
	cmd := exec.Command("go", "build", "-o", bin, pkg)
	cmd.Dir = projectRoot(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build %s failed: %v\n%s", pkg, err, b)
	}
	return bin
}

// startDiffusiond runs the binary with a spawned fake worker and waits for /healthz.
func startDiffusiond(t *testing.T, extra ...string) string {
	t.Helper()
	bin := goBuild(t, "diffusiond", "./cmd/diffusiond")
	worker := goBuild(t, "fake_worker", "./internal/pipeline/testdata/fake_worker.go")
	port := findFreePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	args := append([]string{
		"--addr", fmt.Sprintf("127.0.0.1:%d", port),
		"--model_name", "sd",
		"--model_id", "org/stable-diffusion",
		"--runtime", "spawn",
		"--worker-bin", worker,
		"--worker-start-timeout", "30",
		"--gpu-check=false",
		"--log-format", "json",
	}, extra...)
	cmd := exec.Command(bin, args...)
	cmd.Dir = t.TempDir()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Signal(os.Interrupt)
		done := make(chan struct{})
		go func() { _ = cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			_ = cmd.Process.Kill()
		}
	})

	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	return base
}

func waitReady(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for {
		resp, _ := get(t, base+"/readyz")
		if resp.StatusCode == http.StatusOK {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("/readyz did not become ready in time; last=%d", resp.StatusCode)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestBlackbox_Flow(t *testing.T) {
	base := startDiffusiond(t)
	waitReady(t, base)

	resp, body := get(t, base+"/v1/models")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"sd"`) {
		t.Fatalf("/v1/models %d %s", resp.StatusCode, body)
	}
	resp, body = get(t, base+"/v1/models/sd")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"ready":true`) {
		t.Fatalf("/v1/models/sd %d %s", resp.StatusCode, body)
	}

	resp, body = postJSON(t, base+"/v1/models/sd:predict", `{"instances": [{"prompt": "a red fox"}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("predict %d %s", resp.StatusCode, body)
	}
	p := decodePrediction(t, body)
	if p.ModelName != "org/stable-diffusion" || p.Prompt != "a red fox" {
		t.Fatalf("unexpected prediction: %+v", p)
	}

	resp, body = get(t, base+"/status")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"state":"ready"`) {
		t.Fatalf("/status %d %s", resp.StatusCode, body)
	}
	resp, body = get(t, base+"/metrics")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "diffusiond_model_predict_duration_seconds") {
		t.Fatalf("/metrics %d missing predict histogram", resp.StatusCode)
	}
}

func TestBlackbox_UnknownModel_404(t *testing.T) {
	base := startDiffusiond(t)
	waitReady(t, base)
	resp, body := postJSON(t, base+"/v1/models/missing:predict", `{"instances": [{"prompt": "hi"}]}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d, body=%s", resp.StatusCode, body)
	}
}

func TestBlackbox_InvalidDeviceExits(t *testing.T) {
	bin := goBuild(t, "diffusiond", "./cmd/diffusiond")
	cmd := exec.Command(bin,
		"--addr", fmt.Sprintf("127.0.0.1:%d", findFreePort(t)),
		"--runtime", "spawn", "--worker-bin", "/bin/true",
		"--device", "tpu", "--fail-on-load", "--log-format", "json")
	cmd.Dir = t.TempDir()
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("expected non-zero exit, output:\n%s", out)
	}
	if !strings.Contains(string(out), "tpu") {
		t.Fatalf("expected device in output, got:\n%s", out)
	}
}
