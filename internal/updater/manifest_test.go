package updater_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/reposync/internal/updater"
)

func writeManifestFile(testInstance *testing.T, content string) string {
	testInstance.Helper()
	manifestPath := filepath.Join(testInstance.TempDir(), "jobs.yaml")
	require.NoError(testInstance, os.WriteFile(manifestPath, []byte(content), 0o644))
	return manifestPath
}

func TestLoadManifest(testInstance *testing.T) {
	manifestContent := `
jobs:
  - name: site
    path: /srv/checkouts/site
    remote: origin
    branch: main
    reset: true
    post_command: ["python3", "refresh_site.py"]
    virtualenv: /srv/checkouts/site/venv
    env:
      DEPLOY_TARGET: production
    log_file: /srv/checkouts/site/update.log
  - path: /srv/checkouts/docs
    preserve_changes: true
summary_log: /var/log/reposync.log
failure_policy: strict
`

	manifestPath := writeManifestFile(testInstance, manifestContent)
	configuration, loadError := updater.LoadManifest(manifestPath)
	require.NoError(testInstance, loadError)

	require.Equal(testInstance, updater.FailurePolicyStrict, configuration.FailurePolicy)
	require.Equal(testInstance, "/var/log/reposync.log", configuration.SummaryLogPath)
	require.Len(testInstance, configuration.Jobs, 2)

	firstJob := configuration.Jobs[0]
	require.Equal(testInstance, "site", firstJob.Name)
	require.Equal(testInstance, "/srv/checkouts/site", firstJob.LocalPath)
	require.True(testInstance, firstJob.ResetLocalChanges)
	require.Equal(testInstance, []string{"python3", "refresh_site.py"}, firstJob.PostUpdateCommand)
	require.Equal(testInstance, "/srv/checkouts/site/venv", firstJob.VirtualEnvironmentPath)
	require.Equal(testInstance, map[string]string{"DEPLOY_TARGET": "production"}, firstJob.EnvironmentVariables)
	require.Equal(testInstance, "/srv/checkouts/site/update.log", firstJob.LogFilePath)

	secondJob := configuration.Jobs[1]
	require.Equal(testInstance, "/srv/checkouts/docs", secondJob.LocalPath)
	require.True(testInstance, secondJob.PreserveLocalChanges)
}

func TestLoadManifestAcceptsSyncWrapper(testInstance *testing.T) {
	manifestContent := `
sync:
  jobs:
    - path: /srv/checkouts/site
`

	manifestPath := writeManifestFile(testInstance, manifestContent)
	configuration, loadError := updater.LoadManifest(manifestPath)
	require.NoError(testInstance, loadError)
	require.Len(testInstance, configuration.Jobs, 1)
	require.Equal(testInstance, updater.FailurePolicyLogOnly, configuration.FailurePolicy)
}

func TestLoadManifestFailures(testInstance *testing.T) {
	testCases := []struct {
		name            string
		manifestContent string
		expectedMessage string
	}{
		{
			name:            "empty_jobs",
			manifestContent: "jobs: []\n",
			expectedMessage: "at least one job",
		},
		{
			name:            "malformed_yaml",
			manifestContent: "jobs: [::\n",
			expectedMessage: "failed to parse job manifest",
		},
		{
			name:            "unknown_failure_policy",
			manifestContent: "jobs:\n  - path: /srv/checkouts/site\nfailure_policy: halt\n",
			expectedMessage: "unknown failure policy",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			manifestPath := writeManifestFile(subtestInstance, testCase.manifestContent)
			_, loadError := updater.LoadManifest(manifestPath)
			require.Error(subtestInstance, loadError)
			require.Contains(subtestInstance, loadError.Error(), testCase.expectedMessage)
		})
	}
}

func TestLoadManifestRequiresPath(testInstance *testing.T) {
	_, loadError := updater.LoadManifest("  ")
	require.Error(testInstance, loadError)
}

func TestLoadManifestMissingFile(testInstance *testing.T) {
	_, loadError := updater.LoadManifest(filepath.Join(testInstance.TempDir(), "absent.yaml"))
	require.Error(testInstance, loadError)
	require.Contains(testInstance, loadError.Error(), "failed to load job manifest")
}
