package updater

import (
	"errors"
	"fmt"
	"os"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

const (
	manifestPathRequiredMessageConstant   = "job manifest path must be provided"
	manifestLoadErrorTemplateConstant     = "failed to load job manifest: %w"
	manifestParseErrorTemplateConstant    = "failed to parse job manifest: %w"
	manifestEmptyJobsMessageConstant      = "job manifest must define at least one job"
	manifestJobDecodeTemplateConstant     = "failed to decode job %d: %w"
	manifestDecoderTagNameConstant        = "mapstructure"
	manifestUnknownPolicyTemplateConstant = "unknown failure policy %q"
)

type manifestDocument struct {
	Jobs          []map[string]any `yaml:"jobs"`
	SummaryLog    string           `yaml:"summary_log"`
	FailurePolicy string           `yaml:"failure_policy"`
}

// LoadManifest reads a YAML job manifest from disk and decodes it into a
// sanitized sync configuration.
func LoadManifest(filePath string) (CommandConfiguration, error) {
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return CommandConfiguration{}, errors.New(manifestPathRequiredMessageConstant)
	}

	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return CommandConfiguration{}, fmt.Errorf(manifestLoadErrorTemplateConstant, readError)
	}

	var document manifestDocument
	if unmarshalError := yaml.Unmarshal(contentBytes, &document); unmarshalError != nil {
		var wrapper struct {
			Sync manifestDocument `yaml:"sync"`
		}
		if nestedError := yaml.Unmarshal(contentBytes, &wrapper); nestedError != nil || len(wrapper.Sync.Jobs) == 0 {
			return CommandConfiguration{}, fmt.Errorf(manifestParseErrorTemplateConstant, unmarshalError)
		}
		document = wrapper.Sync
	} else if len(document.Jobs) == 0 {
		var wrapper struct {
			Sync manifestDocument `yaml:"sync"`
		}
		if nestedError := yaml.Unmarshal(contentBytes, &wrapper); nestedError == nil && len(wrapper.Sync.Jobs) > 0 {
			document = wrapper.Sync
		}
	}

	if len(document.Jobs) == 0 {
		return CommandConfiguration{}, errors.New(manifestEmptyJobsMessageConstant)
	}

	configuration := CommandConfiguration{
		SummaryLogPath: document.SummaryLog,
		FailurePolicy:  document.FailurePolicy,
	}
	for jobIndex, jobOptions := range document.Jobs {
		var jobConfiguration JobConfiguration
		if decodeError := decodeJobOptions(jobOptions, &jobConfiguration); decodeError != nil {
			return CommandConfiguration{}, fmt.Errorf(manifestJobDecodeTemplateConstant, jobIndex+1, decodeError)
		}
		configuration.Jobs = append(configuration.Jobs, jobConfiguration)
	}

	sanitized := configuration.Sanitize()
	if sanitized.FailurePolicy != FailurePolicyLogOnly && sanitized.FailurePolicy != FailurePolicyStrict {
		return CommandConfiguration{}, fmt.Errorf(manifestUnknownPolicyTemplateConstant, sanitized.FailurePolicy)
	}

	return sanitized, nil
}

func decodeJobOptions(options map[string]any, target *JobConfiguration) error {
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: manifestDecoderTagNameConstant, Result: target})
	if decoderError != nil {
		return decoderError
	}
	return decoder.Decode(options)
}
