package collector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Connection modes
const (
	ModeAuto       = "auto"
	ModeInCluster  = "in-cluster"
	ModeKubeconfig = "kubeconfig"
	ModeMock       = "mock"
)

// ErrNoCluster is returned when no cluster configuration could be found in auto mode
var ErrNoCluster = errors.New("no kubernetes configuration available")

// RestConfig resolves the API server configuration for mode. Auto tries the
// in-cluster service account first, then the kubeconfig file.
func RestConfig(mode, kubeconfig string, logger zerolog.Logger) (*rest.Config, error) {
	switch mode {
	case ModeInCluster:
		cfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("in-cluster config: %w", err)
		}
		return cfg, nil

	case ModeKubeconfig:
		return kubeconfigFile(resolveKubeconfig(kubeconfig))

	case ModeAuto, "":
		cfg, err := rest.InClusterConfig()
		if err == nil {
			logger.Info().Msg("Using in-cluster Kubernetes configuration")
			return cfg, nil
		}
		logger.Debug().Err(err).Msg("In-cluster configuration unavailable, trying kubeconfig")

		path := resolveKubeconfig(kubeconfig)
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, fmt.Errorf("%w: in-cluster: %v; kubeconfig %s: %v", ErrNoCluster, err, path, statErr)
		}
		cfg, err = kubeconfigFile(path)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("kubeconfig", path).Msg("Using kubeconfig")
		return cfg, nil
	}
	return nil, fmt.Errorf("unknown kubernetes mode %q", mode)
}

// NewClient builds a clientset for mode
func NewClient(mode, kubeconfig string, logger zerolog.Logger) (kubernetes.Interface, error) {
	cfg, err := RestConfig(mode, kubeconfig, logger)
	if err != nil {
		return nil, err
	}
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("kube client for %s: %w", cfg.Host, err)
	}
	return cs, nil
}

func kubeconfigFile(path string) (*rest.Config, error) {
	cfg, err := clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig %s: %w", path, err)
	}
	return cfg, nil
}

func resolveKubeconfig(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv(clientcmd.RecommendedConfigPathEnvVar); env != "" {
		return filepath.SplitList(env)[0]
	}
	return clientcmd.RecommendedHomeFile
}
