package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/JonMunkholm/tabload/internal/source"
)

// Job describes one CLI ingestion in an HCL file:
//
//	table  = "orders"
//	source = "uploads/orders.csv"
//
//	null_marker         = "NA"
//	delimiter           = ";"
//	checkpoint_interval = 500
//
//	database {
//	  driver = "sqlite"
//	  url    = "ingest.db"
//	}
//
// The database block is optional and overrides DATABASE_DRIVER/DATABASE_URL.
type Job struct {
	Table              string       `hcl:"table"`
	Source             string       `hcl:"source"`
	NullMarker         string       `hcl:"null_marker,optional"`
	Delimiter          string       `hcl:"delimiter,optional"`
	Sheet              string       `hcl:"sheet,optional"`
	CheckpointInterval int          `hcl:"checkpoint_interval,optional"`
	Database           *JobDatabase `hcl:"database,block"`
}

// JobDatabase overrides the environment's database settings for one job.
type JobDatabase struct {
	Driver string `hcl:"driver,optional"`
	URL    string `hcl:"url"`
}

// DefaultJob returns a job with every optional setting at its default.
func DefaultJob() *Job {
	return &Job{
		NullMarker:         "NA",
		CheckpointInterval: 100,
	}
}

// LoadJob reads and validates a job file.
func LoadJob(path string) (*Job, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(content, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse job file: %s", diags.Error())
	}

	job := DefaultJob()
	if diags := gohcl.DecodeBody(file.Body, nil, job); diags.HasErrors() {
		return nil, fmt.Errorf("decode job file: %s", diags.Error())
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Validate checks the job's required fields and formats.
func (j *Job) Validate() error {
	var errs []error
	if j.Table == "" {
		errs = append(errs, errors.New("table is required"))
	}
	if j.Source == "" {
		errs = append(errs, errors.New("source is required"))
	}
	if j.NullMarker == "" {
		errs = append(errs, errors.New("null_marker must not be empty"))
	}
	if _, err := source.ParseDelimiter(j.Delimiter); err != nil {
		errs = append(errs, fmt.Errorf("delimiter: %w", err))
	}
	if j.CheckpointInterval <= 0 {
		errs = append(errs, errors.New("checkpoint_interval must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	return nil
}

// SourceOptions converts the job's parsing settings into row source options.
func (j *Job) SourceOptions() source.Options {
	d, _ := source.ParseDelimiter(j.Delimiter)
	return source.Options{Delimiter: d, Sheet: j.Sheet}
}

// ExportJob writes job to path in HCL format. Optional settings equal to
// their defaults are omitted.
func ExportJob(path string, job *Job) error {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	root.SetAttributeValue("table", cty.StringVal(job.Table))
	root.SetAttributeValue("source", cty.StringVal(job.Source))

	def := DefaultJob()
	if job.NullMarker != def.NullMarker {
		root.SetAttributeValue("null_marker", cty.StringVal(job.NullMarker))
	}
	if job.Delimiter != "" {
		root.SetAttributeValue("delimiter", cty.StringVal(job.Delimiter))
	}
	if job.Sheet != "" {
		root.SetAttributeValue("sheet", cty.StringVal(job.Sheet))
	}
	if job.CheckpointInterval != def.CheckpointInterval {
		root.SetAttributeValue("checkpoint_interval", cty.NumberIntVal(int64(job.CheckpointInterval)))
	}

	if job.Database != nil {
		root.AppendNewline()
		db := root.AppendNewBlock("database", nil).Body()
		if job.Database.Driver != "" {
			db.SetAttributeValue("driver", cty.StringVal(job.Database.Driver))
		}
		db.SetAttributeValue("url", cty.StringVal(job.Database.URL))
	}

	if err := os.WriteFile(path, f.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write job file: %w", err)
	}
	return nil
}
