package tcp

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
)

// buildTLSConfig turns a declarative TLSConfig into a *tls.Config for
// either a listener (server=true) or a dialer (server=false) (spec §4.3
// MLLPS: cert/key/CA/minVersion/SNI/mTLS options).
func buildTLSConfig(cfg TLSConfig, server bool) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	tlsCfg := &tls.Config{ServerName: cfg.ServerName}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load tls keypair: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read tls ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("tls ca file %q contains no usable certificates", cfg.CAFile)
		}
		if server {
			tlsCfg.ClientCAs = pool
			if cfg.MutualTLS {
				tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
			}
		} else {
			tlsCfg.RootCAs = pool
		}
	}

	switch cfg.MinVersion {
	case "1.3":
		tlsCfg.MinVersion = tls.VersionTLS13
	default:
		tlsCfg.MinVersion = tls.VersionTLS12
	}

	return tlsCfg, nil
}

// tlsListen binds a TLS listener (MLLPS server mode).
func tlsListen(addr string, cfg *tls.Config) (net.Listener, error) {
	return tls.Listen("tcp", addr, cfg)
}

// tlsDial connects out over TLS (MLLPS client mode, and MLLPS destinations).
func tlsDial(addr string, cfg *tls.Config) (net.Conn, error) {
	return tls.Dial("tcp", addr, cfg)
}

// tlsClientHandshake wraps an already-dialed raw connection (used when a
// local bind address/port is required) with a TLS client handshake.
func tlsClientHandshake(raw net.Conn, cfg *tls.Config) (net.Conn, error) {
	tlsConn := tls.Client(raw, cfg)
	if err := tlsConn.Handshake(); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return tlsConn, nil
}
