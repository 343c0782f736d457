package cluster

import (
	"encoding/base64"
	"fmt"
	"os"

	"k8s.io/client-go/rest"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"
)

// LoadRESTConfig builds a *rest.Config the way the cluster adapter's two
// supported auth modes require: when K8S_API_URL is set, a hand-built
// bearer-token config (host, token, CA bundle decoded from base64
// K8S_CACERT); otherwise controller-runtime's GetConfig(), which itself
// tries KUBECONFIG, in-cluster config, and ~/.kube/config in that order.
func LoadRESTConfig() (*rest.Config, error) {
	apiURL := os.Getenv("K8S_API_URL")
	if apiURL == "" {
		cfg, err := ctrlconfig.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("discover kubeconfig: %w", err)
		}
		return cfg, nil
	}

	caCert := os.Getenv("K8S_CACERT")
	if caCert == "" {
		return nil, fmt.Errorf("K8S_CACERT is required when K8S_API_URL is set")
	}
	caData, err := base64.StdEncoding.DecodeString(caCert)
	if err != nil {
		return nil, fmt.Errorf("decode K8S_CACERT: %w", err)
	}

	return &rest.Config{
		Host:        apiURL,
		BearerToken: os.Getenv("K8S_TOKEN"),
		TLSClientConfig: rest.TLSClientConfig{
			CAData: caData,
		},
	}, nil
}
