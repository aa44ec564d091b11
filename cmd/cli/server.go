package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	serverBinary       = "ytmux-server"
	serverStartTimeout = 10 * time.Second
	serverPollInterval = 200 * time.Millisecond
)

// serverConfig is passed to an auto-started server
var serverConfig string

func init() {
	rootCmd.PersistentFlags().StringVar(&serverConfig, "server-config", "", "Config file for an auto-started server")
}

// healthStatus is the subset of /health the CLI inspects
type healthStatus struct {
	Status string `json:"status"`
	Tools  struct {
		Available bool   `json:"available"`
		Error     string `json:"error"`
	} `json:"tools"`
}

// serverHealth returns the server's health report, or false if it is not responding
func serverHealth() (healthStatus, bool) {
	var health healthStatus
	client := &http.Client{Timeout: 1 * time.Second}
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		return health, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return health, false
	}
	json.NewDecoder(resp.Body).Decode(&health)
	return health, true
}

// findServerBinary locates the ytmux-server binary
func findServerBinary() (string, error) {
	if execPath, err := os.Executable(); err == nil {
		serverPath := filepath.Join(filepath.Dir(execPath), serverBinary)
		if _, err := os.Stat(serverPath); err == nil {
			return serverPath, nil
		}
	}

	if serverPath, err := exec.LookPath(serverBinary); err == nil {
		return serverPath, nil
	}

	home, _ := os.UserHomeDir()
	commonPaths := []string{
		filepath.Join("/usr/local/bin", serverBinary),
		filepath.Join("/usr/bin", serverBinary),
		filepath.Join(home, "go/bin", serverBinary),
		filepath.Join(home, ".local/bin", serverBinary),
	}
	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%s binary not found", serverBinary)
}

// startServerBackground starts the server as a detached background process
func startServerBackground() error {
	serverPath, err := findServerBinary()
	if err != nil {
		return err
	}

	args := []string{"-server-mode"}
	if serverConfig != "" {
		abs, err := filepath.Abs(serverConfig)
		if err != nil {
			return err
		}
		args = append(args, "-config", abs)
	}

	cmd := exec.Command(serverPath, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	setSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	go func() {
		cmd.Wait()
	}()

	return nil
}

// waitForServerReady polls the server until it's ready or timeout
func waitForServerReady() (healthStatus, error) {
	deadline := time.Now().Add(serverStartTimeout)

	for time.Now().Before(deadline) {
		if health, ok := serverHealth(); ok {
			return health, nil
		}
		time.Sleep(serverPollInterval)
	}

	return healthStatus{}, fmt.Errorf("server did not start within %v", serverStartTimeout)
}

// ensureServerRunning checks if server is running, starts it if not
func ensureServerRunning() error {
	if _, ok := serverHealth(); ok {
		return nil
	}

	fmt.Println("Server not running, starting...")

	if err := startServerBackground(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	health, err := waitForServerReady()
	if err != nil {
		return err
	}

	fmt.Println("Server started successfully")
	if !health.Tools.Available {
		fmt.Fprintf(os.Stderr, "Warning: server cannot run downloads: %s\n", health.Tools.Error)
	}
	return nil
}
