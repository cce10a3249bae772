package config

import (
	"time"
)

type (
	// Chain contains the settlement ledger settings: the RPC endpoint, the
	// signing identity, and the flow contract deposits are submitted to.
	Chain struct {
		RPCURL string `yaml:"rpcURL"`
		// PrivateKey is the hex-encoded secp256k1 key that signs deposit
		// transactions.
		PrivateKey   string `yaml:"privateKey"`
		FlowContract string `yaml:"flowContract"`
		// PricePerByte is the storage endowment, in wei per byte, attached
		// to each deposit transaction.
		PricePerByte uint64 `yaml:"pricePerByte"`
	}

	// Nodes contains the storage node endpoints and transfer settings.
	Nodes struct {
		// Endpoints lists the RPC addresses of the storage nodes. The first
		// reachable node receives uploads; downloads may use any of them.
		Endpoints []string `yaml:"endpoints"`
		// RequestTimeout bounds a single node RPC.
		RequestTimeout time.Duration `yaml:"requestTimeout"`
		// MaxConcurrent is the maximum number of concurrent segment fetches.
		MaxConcurrent int `yaml:"maxConcurrent"`
		// CacheSize is the maximum number of segments to cache in memory.
		CacheSize int `yaml:"cacheSize"`
	}

	// Validation contains the upload acceptance rules.
	Validation struct {
		// MaxSize is the maximum payload size in bytes.
		MaxSize uint64 `yaml:"maxSize"`
		// MimeTypes lists the accepted MIME types.
		MimeTypes []string `yaml:"mimeTypes"`
		// Extensions lists the accepted file extensions.
		Extensions []string `yaml:"extensions"`
	}

	// RetryPolicy bounds the retry loop for one class of operation.
	RetryPolicy struct {
		MaxAttempts    int           `yaml:"maxAttempts"`
		BaseBackoff    time.Duration `yaml:"baseBackoff"`
		AttemptTimeout time.Duration `yaml:"attemptTimeout"`
	}

	// Retry contains the retry policies for transfers.
	Retry struct {
		Upload   RetryPolicy `yaml:"upload"`
		Download RetryPolicy `yaml:"download"`
	}

	// Staging contains the scratch directory for in-flight transfers.
	Staging struct {
		Dir string `yaml:"dir"`
	}

	// API contains the listen address of the API server
	API struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
	}

	// Log contains the log settings
	Log struct {
		Level string `yaml:"level"`
	}

	// Config contains the configuration for storaged
	Config struct {
		Chain      Chain      `yaml:"chain"`
		Nodes      Nodes      `yaml:"nodes"`
		Validation Validation `yaml:"validation"`
		Retry      Retry      `yaml:"retry"`
		Staging    Staging    `yaml:"staging"`
		API        API        `yaml:"api"`
		Log        Log        `yaml:"log"`
	}
)
