package pipeline_test

import (
	"errors"
	"testing"
	"time"

	"github.com/waabox/conveyor/internal/domain"
	"github.com/waabox/conveyor/internal/pipeline"
)

const examplePipeline = `
name: build-and-publish
on:
  push:
    branches: [main]
env:
  CGO_ENABLED: "0"
jobs:
  test:
    runs-on: ubuntu-latest
    steps:
      - name: run tests
        run: go test ./...
        timeout: 10m
  publish:
    needs: test
    steps:
      - name: push image
        uses: docker/build-push
        with:
          tag: registry.example.com/app:latest
        secrets: [REGISTRY_TOKEN]
        retries: 2
`

func TestParse_Example(t *testing.T) {
	p, err := pipeline.Parse([]byte(examplePipeline))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "build-and-publish" {
		t.Errorf("unexpected name %q", p.Name)
	}
	if len(p.On) != 1 || p.On[0].Event != domain.EventPush {
		t.Fatalf("expected one push trigger, got %+v", p.On)
	}
	if len(p.On[0].Branches) != 1 || p.On[0].Branches[0] != "main" {
		t.Errorf("expected branch filter [main], got %v", p.On[0].Branches)
	}

	if len(p.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(p.Jobs))
	}
	// Declaration order must survive the YAML mapping.
	if p.Jobs[0].Name != "test" || p.Jobs[1].Name != "publish" {
		t.Errorf("jobs out of declaration order: %q, %q", p.Jobs[0].Name, p.Jobs[1].Name)
	}

	test := p.Jobs[0]
	if test.RunsOn != "ubuntu-latest" {
		t.Errorf("unexpected runs-on %q", test.RunsOn)
	}
	if test.Steps[0].Timeout != 10*time.Minute {
		t.Errorf("expected 10m timeout, got %v", test.Steps[0].Timeout)
	}

	publish := p.Jobs[1]
	if len(publish.Needs) != 1 || publish.Needs[0] != "test" {
		t.Errorf("expected needs [test], got %v", publish.Needs)
	}
	step := publish.Steps[0]
	if !step.IsAction() || step.Uses != "docker/build-push" {
		t.Errorf("expected action step, got %+v", step)
	}
	if step.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", step.Retries)
	}
	if len(step.Secrets) != 1 || step.Secrets[0] != "REGISTRY_TOKEN" {
		t.Errorf("expected secret slot REGISTRY_TOKEN, got %v", step.Secrets)
	}
}

func TestLoad_File(t *testing.T) {
	p, err := pipeline.Load("testdata/example.yml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(p.Jobs))
	}
	publish := p.Jobs[2]
	if len(publish.Needs) != 2 {
		t.Errorf("expected needs [test lint], got %v", publish.Needs)
	}
	if publish.Steps[0].If != `branch == "main"` {
		t.Errorf("unexpected guard %q", publish.Steps[0].If)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := pipeline.Load("testdata/does-not-exist.yml")
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	var confErr *domain.ConfigurationError
	if !errors.As(err, &confErr) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}

func TestParse_NeedsList(t *testing.T) {
	p, err := pipeline.Parse([]byte(`
jobs:
  a:
    steps: [{run: "true"}]
  b:
    steps: [{run: "true"}]
  c:
    needs: [a, b]
    steps: [{run: "true"}]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := p.Jobs[2]
	if len(c.Needs) != 2 {
		t.Errorf("expected 2 needs, got %v", c.Needs)
	}
}

func configError(t *testing.T, src string) *domain.ConfigurationError {
	t.Helper()
	_, err := pipeline.Parse([]byte(src))
	if err == nil {
		t.Fatal("expected a ConfigurationError")
	}
	var confErr *domain.ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	return confErr
}

func TestParse_RejectsCycles(t *testing.T) {
	confErr := configError(t, `
jobs:
  a:
    needs: b
    steps: [{run: "true"}]
  b:
    needs: a
    steps: [{run: "true"}]
`)
	if len(confErr.Cycle) == 0 {
		t.Errorf("expected cycle sequence in error, got %v", confErr)
	}
}

func TestParse_RejectsUnknownEvent(t *testing.T) {
	configError(t, `
on:
  deployment: {}
jobs:
  a:
    steps: [{run: "true"}]
`)
}

func TestParse_RejectsStepWithRunAndUses(t *testing.T) {
	configError(t, `
jobs:
  a:
    steps:
      - run: "true"
        uses: docker/build-push
`)
}

func TestParse_RejectsStepWithNeither(t *testing.T) {
	configError(t, `
jobs:
  a:
    steps:
      - name: empty
`)
}

func TestParse_RejectsEmptyJobs(t *testing.T) {
	configError(t, `name: empty`)
	configError(t, `
jobs:
  a:
    steps: []
`)
}

func TestParse_RejectsBadGuard(t *testing.T) {
	configError(t, `
jobs:
  a:
    steps:
      - run: "true"
        if: "branch equals main"
`)
}

func TestParse_RejectsBadSecretName(t *testing.T) {
	configError(t, `
jobs:
  a:
    steps:
      - run: "true"
        secrets: [not-valid-name]
`)
}
