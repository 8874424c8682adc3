package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/waabox/conveyor/internal/domain"
	"github.com/waabox/conveyor/internal/secrets"
)

// fileStep mirrors one step entry in the YAML definition.
type fileStep struct {
	Name            string            `yaml:"name"`
	Run             string            `yaml:"run"`
	Uses            string            `yaml:"uses"`
	With            map[string]string `yaml:"with"`
	Env             map[string]string `yaml:"env"`
	Secrets         []string          `yaml:"secrets"`
	If              string            `yaml:"if"`
	ContinueOnError bool              `yaml:"continue-on-error"`
	Timeout         string            `yaml:"timeout"`
	Retries         int               `yaml:"retries"`
}

// needsList accepts both `needs: test` and `needs: [test, lint]`.
type needsList []string

func (n *needsList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var single string
		if err := node.Decode(&single); err != nil {
			return err
		}
		*n = needsList{single}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := node.Decode(&many); err != nil {
			return err
		}
		*n = needsList(many)
		return nil
	}
	return fmt.Errorf("line %d: needs must be a job name or a list of job names", node.Line)
}

// fileJob mirrors one job entry in the YAML definition.
type fileJob struct {
	Needs  needsList         `yaml:"needs"`
	RunsOn string            `yaml:"runs-on"`
	Env    map[string]string `yaml:"env"`
	Steps  []fileStep        `yaml:"steps"`
}

type fileTriggerRule struct {
	Branches []string `yaml:"branches"`
}

// filePipeline mirrors the top level of the YAML definition. Jobs is kept
// as a raw node so declaration order survives the map decode.
type filePipeline struct {
	Name string                     `yaml:"name"`
	On   map[string]fileTriggerRule `yaml:"on"`
	Env  map[string]string          `yaml:"env"`
	Jobs yaml.Node                  `yaml:"jobs"`
}

// Load reads and validates a pipeline definition from a YAML file.
func Load(path string) (*domain.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.Configf("reading pipeline file: %v", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML pipeline definition. Any structural
// problem is reported as a ConfigurationError: the run must never start
// from a malformed pipeline.
func Parse(data []byte) (*domain.Pipeline, error) {
	var raw filePipeline
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, domain.Configf("malformed pipeline definition: %v", err)
	}

	p := &domain.Pipeline{
		Name: raw.Name,
		Env:  raw.Env,
	}

	for event, rule := range raw.On {
		t := domain.EventType(event)
		if !t.Known() {
			return nil, domain.Configf("unknown trigger event type %q", event)
		}
		p.On = append(p.On, domain.TriggerRule{Event: t, Branches: rule.Branches})
	}

	jobs, err := decodeJobs(&raw.Jobs)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, domain.Configf("pipeline defines no jobs")
	}
	p.Jobs = jobs

	for _, job := range p.Jobs {
		if err := validateJob(job); err != nil {
			return nil, err
		}
	}

	// Build the graph once so cyclic or dangling needs reject the
	// pipeline at load time, before any run is created.
	if _, err := NewGraph(p.Jobs); err != nil {
		return nil, err
	}

	return p, nil
}

// decodeJobs walks the jobs mapping node pairwise so jobs come out in
// declaration order rather than map iteration order.
func decodeJobs(node *yaml.Node) ([]domain.Job, error) {
	if node.Kind == 0 || node.IsZero() {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, domain.Configf("jobs must be a mapping of job name to job definition")
	}
	var jobs []domain.Job
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		var fj fileJob
		if err := valueNode.Decode(&fj); err != nil {
			return nil, domain.Configf("job %q: %v", keyNode.Value, err)
		}
		job, err := buildJob(keyNode.Value, fj)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func buildJob(name string, fj fileJob) (domain.Job, error) {
	job := domain.Job{
		Name:   name,
		Needs:  fj.Needs,
		RunsOn: fj.RunsOn,
		Env:    fj.Env,
	}
	for i, fs := range fj.Steps {
		step, err := buildStep(name, i, fs)
		if err != nil {
			return domain.Job{}, err
		}
		job.Steps = append(job.Steps, step)
	}
	return job, nil
}

func buildStep(jobName string, index int, fs fileStep) (domain.Step, error) {
	step := domain.Step{
		Name:            fs.Name,
		Run:             fs.Run,
		Uses:            fs.Uses,
		With:            fs.With,
		Env:             fs.Env,
		Secrets:         fs.Secrets,
		If:              fs.If,
		ContinueOnError: fs.ContinueOnError,
		Retries:         fs.Retries,
	}
	if step.Name == "" {
		step.Name = fmt.Sprintf("step %d", index+1)
	}
	if fs.Timeout != "" {
		timeout, err := time.ParseDuration(fs.Timeout)
		if err != nil {
			return domain.Step{}, domain.Configf("job %q step %q: invalid timeout %q", jobName, step.Name, fs.Timeout)
		}
		step.Timeout = timeout
	}
	return step, nil
}

func validateJob(job domain.Job) error {
	if len(job.Steps) == 0 {
		return domain.Configf("job %q has no steps", job.Name)
	}
	for _, step := range job.Steps {
		if (step.Run == "") == (step.Uses == "") {
			return domain.Configf("job %q step %q must set exactly one of run or uses", job.Name, step.Name)
		}
		if step.Retries < 0 {
			return domain.Configf("job %q step %q: retries must not be negative", job.Name, step.Name)
		}
		if _, err := ParseCondition(step.If); err != nil {
			return domain.Configf("job %q step %q: %v", job.Name, step.Name, err)
		}
		for _, name := range step.Secrets {
			if err := secrets.ValidateKey(name); err != nil {
				return domain.Configf("job %q step %q: invalid secret reference: %v", job.Name, step.Name, err)
			}
		}
	}
	return nil
}
