package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const (
	testComposeFileName    = "docker-compose.yml"
	testConsoleEnvFile     = "crmconsole.env"
	testConfigDirectory    = "config"
	testConfigTemplateFile = "config.yml"
	testSessionSecretValue = "0123456789abcdef0123456789abcdef"
	testCRMBaseURLValue    = "https://crm.example.com/api"
)

func writeAuditFixture(testingT *testing.T, compose string, files map[string]string) string {
	testingT.Helper()
	directory := testingT.TempDir()
	for name, content := range files {
		path := filepath.Join(directory, name)
		require.NoError(testingT, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(testingT, os.WriteFile(path, []byte(content), 0o600))
	}
	composePath := filepath.Join(directory, testComposeFileName)
	require.NoError(testingT, os.WriteFile(composePath, []byte(compose), 0o600))
	return composePath
}

func TestStringListUnmarshalYAML(testingT *testing.T) {
	testCases := []struct {
		name     string
		inputYML string
		expected []string
		hasError bool
	}{
		{name: "scalar value", inputYML: "value", expected: []string{"value"}},
		{name: "sequence values", inputYML: "- first\n- ''\n- second\n", expected: []string{"first", "second"}},
		{name: "mapping unsupported", inputYML: "key: value", hasError: true},
	}

	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(testingT *testing.T) {
			var target stringList
			unmarshalErr := yaml.Unmarshal([]byte(testCase.inputYML), &target)
			if testCase.hasError {
				require.Error(testingT, unmarshalErr)
				return
			}
			require.NoError(testingT, unmarshalErr)
			require.Equal(testingT, testCase.expected, []string(target))
		})
	}
}

func TestEnvironmentMapUnmarshalYAML(testingT *testing.T) {
	var mapping environmentMap
	require.NoError(testingT, yaml.Unmarshal([]byte("CACHE_BACKEND: ' redis '\nSERVE_MODE: web\n"), &mapping))
	require.Equal(testingT, environmentMap{"CACHE_BACKEND": "redis", "SERVE_MODE": "web"}, mapping)

	var sequence environmentMap
	require.NoError(testingT, yaml.Unmarshal([]byte("- APP_ADDR=:8080\n- EMPTY\n- =ignored\n"), &sequence))
	require.Equal(testingT, environmentMap{"APP_ADDR": ":8080", "EMPTY": ""}, sequence)

	var scalar environmentMap
	require.Error(testingT, yaml.Unmarshal([]byte("plain"), &scalar))
}

func TestParseDotEnvDetectsDuplicates(testingT *testing.T) {
	path := filepath.Join(testingT.TempDir(), testConsoleEnvFile)
	require.NoError(testingT, os.WriteFile(path, []byte("# comment\nexport SESSION_SECRET=\"one\"\nCACHE_TTL=30s\nSESSION_SECRET=two\nmalformed\n"), 0o600))

	values, duplicates, parseErr := parseDotEnv(path)

	require.NoError(testingT, parseErr)
	require.Equal(testingT, map[string]string{"SESSION_SECRET": "two", "CACHE_TTL": "30s"}, values)
	require.Equal(testingT, []string{"SESSION_SECRET"}, duplicates)
}

func TestParseHostPort(testingT *testing.T) {
	testCases := []struct {
		mapping  string
		expected string
		ok       bool
	}{
		{mapping: "8080:8080", expected: "8080", ok: true},
		{mapping: `"127.0.0.1:9090:8080"`, expected: "9090", ok: true},
		{mapping: "8080", ok: false},
		{mapping: "80a0:3000", ok: false},
	}
	for _, testCase := range testCases {
		hostPort, ok := parseHostPort(testCase.mapping)
		require.Equal(testingT, testCase.ok, ok, testCase.mapping)
		require.Equal(testingT, testCase.expected, hostPort, testCase.mapping)
	}
}

func TestRunAuditAcceptsValidConsoleCompose(testingT *testing.T) {
	compose := `services:
  crmconsole:
    image: crmconsole
    env_file: crmconsole.env
    environment:
      CACHE_BACKEND: redis
      REDIS_URL: redis://redis:6379/0
      EMAIL_LOG_POLL_INTERVAL: 30s
    volumes:
      - ./config/config.yml:/app/config/config.yml:ro
    ports:
      - "8080:8080"
  redis:
    image: redis:7
    ports:
      - "6379:6379"
`
	composePath := writeAuditFixture(testingT, compose, map[string]string{
		testConsoleEnvFile: "CRM_API_BASE_URL=" + testCRMBaseURLValue + "\nSESSION_SECRET=" + testSessionSecretValue + "\nPUBLIC_BASE_URL=https://console.example.com\n",
		filepath.Join(testConfigDirectory, testConfigTemplateFile): "crm:\n  base_url: ${CRM_API_BASE_URL}\n",
	})

	result := runAudit(composePath)

	require.Empty(testingT, result.errors)
	require.Empty(testingT, result.warnings)
}

func TestRunAuditReportsConsoleMisconfiguration(testingT *testing.T) {
	compose := `services:
  crmconsole:
    env_file:
      - crmconsole.env
      - missing.env
    environment:
      - CACHE_TTL=soon
      - SERVE_MODE=desktop
      - CACHE_BACKEND=redis
      - PUBLIC_BASE_URL=console.example.com
    volumes:
      - ./config/config.yml:/app/config/config.yml
    ports:
      - "8080:8080"
  metrics:
    image: prom
    ports:
      - "8080:9090"
`
	composePath := writeAuditFixture(testingT, compose, map[string]string{
		testConsoleEnvFile: "SESSION_SECRET=short\nSESSION_SECRET=short\n",
		filepath.Join(testConfigDirectory, testConfigTemplateFile): "token: ${MISSING_VALUE}\n",
	})

	result := runAudit(composePath)
	combinedErrors := strings.Join(result.errors, "\n")

	require.Contains(testingT, combinedErrors, "required env CRM_API_BASE_URL is missing or empty")
	require.Contains(testingT, combinedErrors, "env_file missing.env is missing")
	require.Contains(testingT, combinedErrors, "defines SESSION_SECRET more than once")
	require.Contains(testingT, combinedErrors, `CACHE_TTL="soon" is not a positive duration`)
	require.Contains(testingT, combinedErrors, `SERVE_MODE="desktop" must be one of monolith, web, api`)
	require.Contains(testingT, combinedErrors, "CACHE_BACKEND=redis requires REDIS_URL")
	require.Contains(testingT, combinedErrors, `PUBLIC_BASE_URL="console.example.com" is not an absolute http(s) URL`)
	require.Contains(testingT, combinedErrors, "references ${MISSING_VALUE}")
	require.Contains(testingT, combinedErrors, "host port 8080 is published by both crmconsole and metrics")
	require.Contains(testingT, strings.Join(result.warnings, "\n"), "SESSION_SECRET is shorter than 32 characters")
}

func TestRunAuditWarnsAboutUnknownRedisHost(testingT *testing.T) {
	compose := `services:
  crmconsole:
    environment:
      CRM_API_BASE_URL: ` + testCRMBaseURLValue + `
      SESSION_SECRET: ` + testSessionSecretValue + `
      CACHE_BACKEND: redis
      REDIS_URL: cache:6379
`
	result := runAudit(writeAuditFixture(testingT, compose, nil))

	require.Empty(testingT, result.errors)
	require.Equal(testingT, []string{"service crmconsole: REDIS_URL host cache is not a compose service"}, result.warnings)
}

func TestRunAuditReportsUnreadableInput(testingT *testing.T) {
	missing := runAudit(filepath.Join(testingT.TempDir(), testComposeFileName))
	require.Len(testingT, missing.errors, 1)
	require.Contains(testingT, missing.errors[0], "read compose file")

	malformed := runAudit(writeAuditFixture(testingT, "services: [", nil))
	require.Len(testingT, malformed.errors, 1)
	require.Contains(testingT, malformed.errors[0], "parse compose file")

	emptyPath := writeAuditFixture(testingT, "services: {}\n", nil)
	empty := runAudit(emptyPath)
	require.Equal(testingT, []string{"compose file " + emptyPath + ": no services defined"}, empty.errors)
}

func TestRunAuditWarnsWithoutConsoleService(testingT *testing.T) {
	result := runAudit(writeAuditFixture(testingT, "services:\n  redis:\n    image: redis:7\n", nil))

	require.Empty(testingT, result.errors)
	require.Len(testingT, result.warnings, 1)
	require.Contains(testingT, result.warnings[0], "no crmconsole service to audit")
}

func TestReportWritesSortedMessages(testingT *testing.T) {
	var stdout, stderr bytes.Buffer
	failed := report(auditResult{errors: []string{"b", "a"}, warnings: []string{"w"}}, &stdout, &stderr)

	require.Equal(testingT, 1, failed)
	require.Equal(testingT, "WARN: w\n", stdout.String())
	require.Equal(testingT, "ERROR: a\nERROR: b\nconfig-audit failed\n", stderr.String())

	stdout.Reset()
	stderr.Reset()
	require.Equal(testingT, 0, report(auditResult{}, &stdout, &stderr))
	require.Equal(testingT, "config-audit OK\n", stdout.String())
	require.Empty(testingT, stderr.String())
}
