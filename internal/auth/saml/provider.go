package saml

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/crewjam/saml"
	"github.com/google/uuid"
	"github.com/marcogenualdo/edge-bridge/internal/auth"
	"github.com/marcogenualdo/edge-bridge/internal/cache"
	"github.com/marcogenualdo/edge-bridge/internal/config"
)

const (
	requestPrefix = "saml:request:"
	requestTTL    = 5 * time.Minute
)

type Provider struct {
	id            string
	name          string
	claimMappings map[string]string
	cache         cache.Cache

	sp *saml.ServiceProvider
}

func NewProvider(ctx context.Context, providerCfg config.ProviderConfig, cache cache.Cache, baseURL string) (*Provider, error) {
	if providerCfg.SAML == nil {
		return nil, fmt.Errorf("SAML config is required")
	}

	key, cert, err := loadKeyPair(providerCfg.SAML.CertificatePath, providerCfg.SAML.PrivateKeyPath)
	if err != nil {
		return nil, err
	}

	idpMetadata, err := fetchIDPMetadata(ctx, *providerCfg.SAML)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch IdP metadata: %w", err)
	}

	acsURL, err := url.Parse(providerCfg.SAML.ACSURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ACS URL: %w", err)
	}

	metadataURL, err := url.Parse(baseURL + "/auth/saml/" + providerCfg.ID + "/metadata")
	if err != nil {
		return nil, fmt.Errorf("invalid metadata URL: %w", err)
	}

	return &Provider{
		id:            providerCfg.ID,
		name:          providerCfg.Name,
		claimMappings: providerCfg.ClaimMappings,
		cache:         cache,
		sp: &saml.ServiceProvider{
			EntityID:    providerCfg.SAML.SPEntityID,
			Key:         key,
			Certificate: cert,
			MetadataURL: *metadataURL,
			AcsURL:      *acsURL,
			IDPMetadata: idpMetadata,
		},
	}, nil
}

func (p *Provider) ID() string {
	return p.id
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) Type() string {
	return "saml"
}

// InitiateAuth uses the redirect binding. The request ID is kept in the cache
// so the ACS can reject unsolicited responses; RelayState carries its key.
func (p *Provider) InitiateAuth(ctx context.Context, callbackURL, returnTo string) (*auth.AuthRedirect, error) {
	authReq, err := p.sp.MakeAuthenticationRequest(
		p.sp.GetSSOBindingLocation(saml.HTTPRedirectBinding),
		saml.HTTPRedirectBinding,
		saml.HTTPPostBinding,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authentication request: %w", err)
	}

	relayState := uuid.NewString()
	reqData, err := json.Marshal(&auth.SAMLRequest{
		ID:         authReq.ID,
		ProviderID: p.id,
		ReturnTo:   returnTo,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	redirectURL, err := authReq.Redirect(relayState, p.sp)
	if err != nil {
		return nil, fmt.Errorf("failed to create redirect: %w", err)
	}

	return &auth.AuthRedirect{
		URL:       redirectURL.String(),
		CacheKey:  requestPrefix + relayState,
		CacheData: reqData,
		CacheTTL:  requestTTL,
	}, nil
}

func (p *Provider) HandleCallback(ctx context.Context, req *http.Request) (*auth.Session, string, error) {
	if err := req.ParseForm(); err != nil {
		return nil, "", fmt.Errorf("failed to parse form: %w", err)
	}

	if req.PostForm.Get("SAMLResponse") == "" {
		return nil, "", fmt.Errorf("missing SAMLResponse")
	}

	relayState := req.PostForm.Get("RelayState")
	if relayState == "" {
		return nil, "", fmt.Errorf("missing RelayState")
	}

	reqData, err := p.cache.Get(ctx, requestPrefix+relayState)
	if err != nil {
		return nil, "", fmt.Errorf("invalid or expired relay state: %w", err)
	}
	if taken, err := p.cache.Take(ctx, requestPrefix+relayState); err != nil || !taken {
		return nil, "", fmt.Errorf("relay state already used")
	}

	var samlReq auth.SAMLRequest
	if err := json.Unmarshal(reqData, &samlReq); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal request: %w", err)
	}
	if samlReq.ProviderID != p.id {
		return nil, "", fmt.Errorf("provider mismatch")
	}

	assertion, err := p.sp.ParseResponse(req, []string{samlReq.ID})
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse SAML response: %w", err)
	}

	claims := assertionClaims(assertion)
	identity, err := auth.IdentityFromClaims(claims, p.claimMappings)
	if err != nil {
		return nil, "", err
	}

	return &auth.Session{
		ProviderID:   p.id,
		ProviderType: p.Type(),
		Identity:     identity,
		Claims:       claims,
	}, samlReq.ReturnTo, nil
}

func (p *Provider) Metadata() *saml.EntityDescriptor {
	return p.sp.Metadata()
}

func assertionClaims(assertion *saml.Assertion) map[string]any {
	claims := make(map[string]any)

	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		claims["name_id"] = assertion.Subject.NameID.Value
		claims["name_id_format"] = assertion.Subject.NameID.Format
	}

	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			name := attr.Name
			if attr.FriendlyName != "" {
				name = attr.FriendlyName
			}
			if len(attr.Values) == 1 {
				claims[name] = attr.Values[0].Value
			} else if len(attr.Values) > 1 {
				values := make([]string, len(attr.Values))
				for i, v := range attr.Values {
					values[i] = v.Value
				}
				claims[name] = values
			}
		}
	}

	return claims
}

func loadKeyPair(certPath, keyPath string) (*rsa.PrivateKey, *x509.Certificate, error) {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read certificate: %w", err)
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read private key: %w", err)
	}

	certBlock, _ := pem.Decode(certData)
	if certBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode certificate PEM")
	}

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyData)
	if keyBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode private key PEM")
	}

	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		key8, err8 := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
		if err8 != nil {
			return nil, nil, fmt.Errorf("failed to parse private key: %w (PKCS1: %v)", err8, err)
		}
		var ok bool
		key, ok = key8.(*rsa.PrivateKey)
		if !ok {
			return nil, nil, fmt.Errorf("private key is not RSA")
		}
	}

	return key, cert, nil
}

func fetchIDPMetadata(ctx context.Context, cfg config.SAMLConfig) (*saml.EntityDescriptor, error) {
	if cfg.IDPMetadataXML != "" {
		metadata := &saml.EntityDescriptor{}
		if err := xml.Unmarshal([]byte(cfg.IDPMetadataXML), metadata); err != nil {
			return nil, fmt.Errorf("failed to parse IdP metadata XML: %w", err)
		}
		return metadata, nil
	}

	if cfg.IDPMetadataURL == "" {
		return nil, fmt.Errorf("either idp_metadata_url or idp_metadata_xml must be provided")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.IDPMetadataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request returned status %d", resp.StatusCode)
	}

	metadata := &saml.EntityDescriptor{}
	if err := xml.NewDecoder(resp.Body).Decode(metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	return metadata, nil
}
