package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultComposePath  = "docker-compose.yml"
	consoleServiceName  = "crmconsole"
	configMountSuffix   = "/config/config.yml"
	minimumSecretLength = 32
	cacheBackendRedis   = "redis"
)

var (
	errAuditFailed     = errors.New("config_audit_failed")
	placeholderPattern = regexp.MustCompile(`\$\{([A-Z0-9_]+)\}`)

	consoleRequiredKeys = []string{"CRM_API_BASE_URL", "SESSION_SECRET"}
	consoleDurationKeys = []string{"CRM_REQUEST_TIMEOUT", "CACHE_TTL", "BRANDING_CACHE_TTL", "EMAIL_LOG_POLL_INTERVAL"}
	consoleURLKeys      = []string{"CRM_API_BASE_URL", "PUBLIC_BASE_URL"}
	consoleEnumKeys     = map[string][]string{
		"SERVE_MODE":    {"monolith", "web", "api"},
		"CACHE_BACKEND": {"memory", "redis"},
		"DB_DRIVER":     {"sqlite"},
	}
)

type stringList []string

func (list *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*list = nil
		if value := strings.TrimSpace(node.Value); value != "" {
			*list = []string{value}
		}
		return nil
	case yaml.SequenceNode:
		entries := make([]string, 0, len(node.Content))
		for _, child := range node.Content {
			if value := strings.TrimSpace(child.Value); value != "" {
				entries = append(entries, value)
			}
		}
		*list = entries
		return nil
	default:
		return fmt.Errorf("unsupported yaml node kind %d for list", node.Kind)
	}
}

// environmentMap accepts both the mapping and the KEY=VALUE list forms of a
// compose environment block.
type environmentMap map[string]string

func (environment *environmentMap) UnmarshalYAML(node *yaml.Node) error {
	normalized := make(map[string]string)
	switch node.Kind {
	case yaml.MappingNode:
		decoded := make(map[string]string)
		if decodeErr := node.Decode(&decoded); decodeErr != nil {
			return decodeErr
		}
		for key, value := range decoded {
			normalized[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	case yaml.SequenceNode:
		var decoded []string
		if decodeErr := node.Decode(&decoded); decodeErr != nil {
			return decodeErr
		}
		for _, entry := range decoded {
			key, value, _ := strings.Cut(strings.TrimSpace(entry), "=")
			if key = strings.TrimSpace(key); key != "" {
				normalized[key] = strings.TrimSpace(value)
			}
		}
	default:
		return fmt.Errorf("unsupported yaml node kind %d for environment", node.Kind)
	}
	*environment = normalized
	return nil
}

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image       string         `yaml:"image"`
	EnvFile     stringList     `yaml:"env_file"`
	Environment environmentMap `yaml:"environment"`
	Volumes     stringList     `yaml:"volumes"`
	Ports       stringList     `yaml:"ports"`
	OtherKeys   map[string]any `yaml:",inline"`
}

type auditResult struct {
	errors   []string
	warnings []string
}

func (result *auditResult) addError(message string, arguments ...any) {
	result.errors = append(result.errors, fmt.Sprintf(message, arguments...))
}

func (result *auditResult) addWarning(message string, arguments ...any) {
	result.warnings = append(result.warnings, fmt.Sprintf(message, arguments...))
}

func (result auditResult) ok() bool {
	return len(result.errors) == 0
}

func main() {
	composePath := defaultComposePath
	if len(os.Args) > 1 {
		composePath = os.Args[1]
	}
	if exitCode := report(runAudit(composePath), os.Stdout, os.Stderr); exitCode != 0 {
		os.Exit(exitCode)
	}
}

func report(result auditResult, stdout io.Writer, stderr io.Writer) int {
	sort.Strings(result.errors)
	sort.Strings(result.warnings)
	for _, warning := range result.warnings {
		_, _ = fmt.Fprintf(stdout, "WARN: %s\n", warning)
	}
	for _, errorMessage := range result.errors {
		_, _ = fmt.Fprintf(stderr, "ERROR: %s\n", errorMessage)
	}
	if !result.ok() {
		_, _ = fmt.Fprintf(stderr, "config-audit failed\n")
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "config-audit OK\n")
	return 0
}

func runAudit(composePath string) auditResult {
	var result auditResult

	composeDocument, readErr := os.ReadFile(composePath)
	if readErr != nil {
		result.addError("read compose file %s: %v", composePath, readErr)
		return result
	}

	var compose composeFile
	if decodeErr := yaml.Unmarshal(composeDocument, &compose); decodeErr != nil {
		result.addError("parse compose file %s: %v", composePath, decodeErr)
		return result
	}
	if len(compose.Services) == 0 {
		result.addError("compose file %s: no services defined", composePath)
		return result
	}

	composeDirectory := filepath.Dir(composePath)
	publishedPorts := make(map[string]string)
	serviceNames := make([]string, 0, len(compose.Services))
	for serviceName := range compose.Services {
		serviceNames = append(serviceNames, serviceName)
	}
	sort.Strings(serviceNames)

	for _, serviceName := range serviceNames {
		service := compose.Services[serviceName]
		checkPublishedPorts(serviceName, service.Ports, publishedPorts, &result)

		environment, environmentErr := loadServiceEnvironment(composeDirectory, serviceName, service, &result)
		if environmentErr != nil {
			result.addError("service %s: %v", serviceName, environmentErr)
			continue
		}
		checkConfigPlaceholders(composeDirectory, serviceName, service.Volumes, environment, &result)
		if serviceName == consoleServiceName {
			checkConsoleEnvironment(environment, compose.Services, &result)
		}
	}

	if _, found := compose.Services[consoleServiceName]; !found {
		result.addWarning("compose file %s: no %s service to audit", composePath, consoleServiceName)
	}
	return result
}

// loadServiceEnvironment merges env_file entries with the inline environment.
// Inline values win.
func loadServiceEnvironment(composeDirectory string, serviceName string, service composeService, result *auditResult) (map[string]string, error) {
	merged := make(map[string]string)
	for _, envFile := range service.EnvFile {
		resolvedPath := filepath.Clean(filepath.Join(composeDirectory, envFile))
		values, duplicates, parseErr := parseDotEnv(resolvedPath)
		if errors.Is(parseErr, os.ErrNotExist) {
			result.addError("service %s: env_file %s is missing", serviceName, envFile)
			continue
		}
		if parseErr != nil {
			return nil, fmt.Errorf("parse env_file %s: %w", envFile, parseErr)
		}
		for _, duplicate := range duplicates {
			result.addError("service %s: env_file %s defines %s more than once", serviceName, envFile, duplicate)
		}
		for key, value := range values {
			merged[key] = value
		}
	}
	for key, value := range service.Environment {
		if key != "" {
			merged[key] = value
		}
	}
	if len(merged) == 0 && len(service.EnvFile) > 0 {
		return nil, fmt.Errorf("%w: no environment variables resolved", errAuditFailed)
	}
	return merged, nil
}

func parseDotEnv(path string) (map[string]string, []string, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return nil, nil, openErr
	}
	defer func() { _ = file.Close() }()

	entries := make(map[string]string)
	duplicateSet := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimPrefix(strings.TrimSpace(scanner.Text()), "export ")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		if _, seen := entries[key]; seen {
			duplicateSet[key] = struct{}{}
		}
		entries[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, nil, scanErr
	}
	return entries, sortedKeys(duplicateSet), nil
}

// checkConfigPlaceholders reports ${VAR} references in mounted config files
// that the service environment does not define.
func checkConfigPlaceholders(composeDirectory string, serviceName string, volumes []string, environment map[string]string, result *auditResult) {
	for _, templatePath := range resolveConfigTemplates(composeDirectory, volumes) {
		placeholders, placeholderErr := extractPlaceholders(templatePath)
		if placeholderErr != nil {
			result.addError("service %s: %v", serviceName, placeholderErr)
			continue
		}
		for _, placeholderName := range placeholders {
			if _, defined := environment[placeholderName]; !defined {
				result.addError("service %s: %s references ${%s} but %s is not defined in env", serviceName, templatePath, placeholderName, placeholderName)
			}
		}
	}
}

func resolveConfigTemplates(composeDirectory string, volumes []string) []string {
	templateSet := make(map[string]struct{})
	for _, volume := range volumes {
		hostPath, containerPath, ok := parseVolumeMapping(volume)
		if !ok || !strings.HasSuffix(containerPath, configMountSuffix) {
			continue
		}
		templateSet[filepath.Clean(filepath.Join(composeDirectory, hostPath))] = struct{}{}
	}
	return sortedKeys(templateSet)
}

func parseVolumeMapping(entry string) (string, string, bool) {
	parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
	if len(parts) < 2 {
		return "", "", false
	}
	hostPath := strings.TrimSpace(parts[0])
	containerPath := strings.TrimSpace(parts[1])
	return hostPath, containerPath, hostPath != "" && containerPath != ""
}

func extractPlaceholders(path string) ([]string, error) {
	payload, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("read config template %s: %v", path, readErr)
	}
	nameSet := make(map[string]struct{})
	for _, match := range placeholderPattern.FindAllStringSubmatch(string(payload), -1) {
		nameSet[match[1]] = struct{}{}
	}
	return sortedKeys(nameSet), nil
}

func checkPublishedPorts(serviceName string, ports []string, publishedPorts map[string]string, result *auditResult) {
	for _, mapping := range ports {
		hostPort, ok := parseHostPort(mapping)
		if !ok {
			continue
		}
		if existingService, taken := publishedPorts[hostPort]; taken {
			result.addError("compose: host port %s is published by both %s and %s", hostPort, existingService, serviceName)
			continue
		}
		publishedPorts[hostPort] = serviceName
	}
}

func parseHostPort(portMapping string) (string, bool) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(portMapping), `"`), ":")
	if len(parts) < 2 {
		return "", false
	}
	hostPort := strings.TrimSpace(parts[len(parts)-2])
	if hostPort == "" || strings.Trim(hostPort, "0123456789") != "" {
		return "", false
	}
	return hostPort, true
}

// checkConsoleEnvironment validates the settings the console server reads at
// startup.
func checkConsoleEnvironment(environment map[string]string, services map[string]composeService, result *auditResult) {
	for _, key := range consoleRequiredKeys {
		if strings.TrimSpace(environment[key]) == "" {
			result.addError("service %s: required env %s is missing or empty", consoleServiceName, key)
		}
	}
	for _, key := range consoleURLKeys {
		checkAbsoluteURL(key, environment[key], result)
	}
	for _, key := range consoleDurationKeys {
		value := strings.TrimSpace(environment[key])
		if value == "" || placeholderPattern.MatchString(value) {
			continue
		}
		if duration, parseErr := time.ParseDuration(value); parseErr != nil || duration <= 0 {
			result.addError("service %s: env %s=%q is not a positive duration", consoleServiceName, key, value)
		}
	}
	for key, allowed := range consoleEnumKeys {
		value := strings.ToLower(strings.TrimSpace(environment[key]))
		if value != "" && !containsString(allowed, value) {
			result.addError("service %s: env %s=%q must be one of %s", consoleServiceName, key, value, strings.Join(allowed, ", "))
		}
	}
	if secret := strings.TrimSpace(environment["SESSION_SECRET"]); secret != "" && len(secret) < minimumSecretLength {
		result.addWarning("service %s: SESSION_SECRET is shorter than %d characters", consoleServiceName, minimumSecretLength)
	}
	if strings.EqualFold(strings.TrimSpace(environment["CACHE_BACKEND"]), cacheBackendRedis) {
		checkRedisTarget(environment["REDIS_URL"], services, result)
	}
}

func checkAbsoluteURL(key string, value string, result *auditResult) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || placeholderPattern.MatchString(trimmed) {
		return
	}
	parsed, parseErr := url.Parse(trimmed)
	if parseErr != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		result.addError("service %s: env %s=%q is not an absolute http(s) URL", consoleServiceName, key, trimmed)
	}
}

// checkRedisTarget requires a redis address when the shared cache is enabled
// and warns when it points at a compose service that does not exist.
func checkRedisTarget(redisURL string, services map[string]composeService, result *auditResult) {
	trimmed := strings.TrimSpace(redisURL)
	if trimmed == "" {
		result.addError("service %s: CACHE_BACKEND=redis requires REDIS_URL", consoleServiceName)
		return
	}
	host := trimmed
	if parsed, parseErr := url.Parse(trimmed); parseErr == nil && parsed.Host != "" {
		host = parsed.Hostname()
	} else if hostName, _, found := strings.Cut(trimmed, ":"); found {
		host = hostName
	}
	if host == "localhost" || host == "127.0.0.1" || strings.Contains(host, ".") {
		return
	}
	if _, defined := services[host]; !defined {
		result.addWarning("service %s: REDIS_URL host %s is not a compose service", consoleServiceName, host)
	}
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
