package linkregistry

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/authorizer-tech/link-registry/internal/certs"
	"github.com/authorizer-tech/link-registry/internal/certs/certstest"
	"github.com/authorizer-tech/link-registry/internal/generator"
	"github.com/authorizer-tech/link-registry/internal/registry"
	"github.com/authorizer-tech/link-registry/internal/store"
)

var (
	alphaPEM = certstest.PEM(1, 64)
	bravoPEM = certstest.PEM(2, 64)
	livePEM  = certstest.PEM(9, 64)

	now = time.Date(2021, 7, 1, 12, 0, 0, 0, time.UTC)
)

func mustKey(pemText string) string {
	key, err := certs.KeyFromPEM(pemText)
	if err != nil {
		panic(err)
	}
	return key
}

func mustFingerprint(pemText string) string {
	fp, err := certs.FingerprintFromPEM(pemText)
	if err != nil {
		panic(err)
	}
	return fp
}

func testSnapshot() *registry.Snapshot {
	return registry.NewSnapshot([]registry.ServerRecord{
		{
			Name:                "bravo",
			Hostname:            "bravo.example.org",
			Port:                7000,
			Autoconnect:         false,
			BootstrapCertKey:    mustKey(bravoPEM),
			LiveCertFingerprint: mustFingerprint(livePEM),
		},
		{
			Name:             "alpha",
			Hostname:         "alpha",
			Port:             registry.DefaultPort,
			Autoconnect:      true,
			BootstrapCertKey: mustKey(alphaPEM),
		},
	}, now)
}

func TestNewLinkRegistry(t *testing.T) {

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tests := []struct {
		name    string
		opts    []LinkRegistryOption
		wantErr bool
	}{
		{
			name:    "Test-1: Missing Registry",
			opts:    []LinkRegistryOption{WithCertificateStore(NewMockCertificateStore(ctrl))},
			wantErr: true,
		},
		{
			name:    "Test-2: Missing CertificateStore",
			opts:    []LinkRegistryOption{WithRegistry(NewMockRegistry(ctrl))},
			wantErr: true,
		},
		{
			name: "Test-3: Required options",
			opts: []LinkRegistryOption{
				WithRegistry(NewMockRegistry(ctrl)),
				WithCertificateStore(NewMockCertificateStore(ctrl)),
			},
		},
		{
			name: "Test-4: All options",
			opts: []LinkRegistryOption{
				WithRegistry(NewMockRegistry(ctrl)),
				WithCertificateStore(NewMockCertificateStore(ctrl)),
				WithUpdateLog(NewMockUpdateLog(ctrl)),
				WithClock(func() time.Time { return now }),
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			l, err := NewLinkRegistry(test.opts...)

			if test.wantErr {
				if err == nil {
					t.Errorf("Expected an error, but got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("Expected nil error, but got '%v'", err)
			}
			if l == nil {
				t.Errorf("Expected a LinkRegistry, but got nil")
			}
		})
	}
}

func TestLinkRegistry_UpdateCertificate(t *testing.T) {

	snapshotErr := errors.New("snapshot failure")
	persistErr := errors.New("disk full")

	type input struct {
		clientCert string
		newCert    string
	}

	type output struct {
		server string
		err    error
	}

	tests := []struct {
		name string
		input
		output
		mockController func(r *MockRegistry, s *MockCertificateStore, u *MockUpdateLog)
	}{
		{
			name:   "Test-1: No client certificate",
			input:  input{newCert: livePEM},
			output: output{err: ErrBadRequest},
		},
		{
			name:   "Test-2: Snapshot failure",
			input:  input{clientCert: alphaPEM, newCert: livePEM},
			output: output{err: snapshotErr},
			mockController: func(r *MockRegistry, s *MockCertificateStore, u *MockUpdateLog) {
				r.EXPECT().GetSnapshot(gomock.Any(), false).Return(nil, snapshotErr)
			},
		},
		{
			name:   "Test-3: Malformed client certificate",
			input:  input{clientCert: "garbage", newCert: livePEM},
			output: output{err: ErrBadRequest},
			mockController: func(r *MockRegistry, s *MockCertificateStore, u *MockUpdateLog) {
				r.EXPECT().GetSnapshot(gomock.Any(), false).Return(testSnapshot(), nil)
			},
		},
		{
			name:   "Test-4: Unknown client certificate",
			input:  input{clientCert: certstest.PEM(42, 64), newCert: livePEM},
			output: output{err: ErrUnauthorized},
			mockController: func(r *MockRegistry, s *MockCertificateStore, u *MockUpdateLog) {
				r.EXPECT().GetSnapshot(gomock.Any(), false).Return(testSnapshot(), nil)
			},
		},
		{
			name:   "Test-5: Live certificate is not a bootstrap credential",
			input:  input{clientCert: livePEM, newCert: livePEM},
			output: output{err: ErrUnauthorized},
			mockController: func(r *MockRegistry, s *MockCertificateStore, u *MockUpdateLog) {
				r.EXPECT().GetSnapshot(gomock.Any(), false).Return(testSnapshot(), nil)
			},
		},
		{
			name:   "Test-6: Missing new certificate",
			input:  input{clientCert: alphaPEM},
			output: output{err: ErrBadRequest},
			mockController: func(r *MockRegistry, s *MockCertificateStore, u *MockUpdateLog) {
				r.EXPECT().GetSnapshot(gomock.Any(), false).Return(testSnapshot(), nil)
			},
		},
		{
			name:   "Test-7: Malformed new certificate",
			input:  input{clientCert: alphaPEM, newCert: "not a certificate"},
			output: output{err: ErrBadRequest},
			mockController: func(r *MockRegistry, s *MockCertificateStore, u *MockUpdateLog) {
				r.EXPECT().GetSnapshot(gomock.Any(), false).Return(testSnapshot(), nil)
			},
		},
		{
			name:   "Test-8: Persist failure",
			input:  input{clientCert: alphaPEM, newCert: livePEM},
			output: output{err: persistErr},
			mockController: func(r *MockRegistry, s *MockCertificateStore, u *MockUpdateLog) {
				r.EXPECT().GetSnapshot(gomock.Any(), false).Return(testSnapshot(), nil)
				s.EXPECT().PersistCertificate(gomock.Any(), "alpha", []byte(livePEM)).Return(persistErr)
			},
		},
		{
			name:   "Test-9: Successful update",
			input:  input{clientCert: alphaPEM, newCert: livePEM},
			output: output{server: "alpha"},
			mockController: func(r *MockRegistry, s *MockCertificateStore, u *MockUpdateLog) {
				gomock.InOrder(
					r.EXPECT().GetSnapshot(gomock.Any(), false).Return(testSnapshot(), nil),
					s.EXPECT().PersistCertificate(gomock.Any(), "alpha", []byte(livePEM)).Return(nil),
					r.EXPECT().Invalidate(),
					u.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil),
				)
			},
		},
		{
			name:   "Test-10: Update log failure doesn't fail the update",
			input:  input{clientCert: bravoPEM, newCert: alphaPEM},
			output: output{server: "bravo"},
			mockController: func(r *MockRegistry, s *MockCertificateStore, u *MockUpdateLog) {
				r.EXPECT().GetSnapshot(gomock.Any(), false).Return(testSnapshot(), nil)
				s.EXPECT().PersistCertificate(gomock.Any(), "bravo", []byte(alphaPEM)).Return(nil)
				r.EXPECT().Invalidate()
				u.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("database is down"))
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockRegistry := NewMockRegistry(ctrl)
			mockStore := NewMockCertificateStore(ctrl)
			mockLog := NewMockUpdateLog(ctrl)

			if test.mockController != nil {
				test.mockController(mockRegistry, mockStore, mockLog)
			}

			l, err := NewLinkRegistry(
				WithRegistry(mockRegistry),
				WithCertificateStore(mockStore),
				WithUpdateLog(mockLog),
				WithClock(func() time.Time { return now }),
			)
			if err != nil {
				t.Fatalf("Failed to construct the LinkRegistry: %v", err)
			}

			update, err := l.UpdateCertificate(context.Background(), test.input.clientCert, test.input.newCert)

			if !errors.Is(err, test.output.err) {
				t.Fatalf("Expected error '%v', but got '%v'", test.output.err, err)
			}

			if err != nil {
				return
			}

			if update.Server != test.output.server {
				t.Errorf("Expected server '%s', but got '%s'", test.output.server, update.Server)
			}

			if update.Fingerprint != mustFingerprint(test.input.newCert) {
				t.Errorf("Expected fingerprint '%s', but got '%s'", mustFingerprint(test.input.newCert), update.Fingerprint)
			}

			if !update.Timestamp.Equal(now) {
				t.Errorf("Expected timestamp '%v', but got '%v'", now, update.Timestamp)
			}
		})
	}
}

func TestLinkRegistry_UpdateCertificateRecordsUpdate(t *testing.T) {

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := NewMockRegistry(ctrl)
	mockStore := NewMockCertificateStore(ctrl)
	mockLog := NewMockUpdateLog(ctrl)

	var recorded CertificateUpdate

	mockRegistry.EXPECT().GetSnapshot(gomock.Any(), false).Return(testSnapshot(), nil)
	mockStore.EXPECT().PersistCertificate(gomock.Any(), "alpha", gomock.Any()).Return(nil)
	mockRegistry.EXPECT().Invalidate()
	mockLog.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, update CertificateUpdate) error {
		recorded = update
		return nil
	})

	l, err := NewLinkRegistry(
		WithRegistry(mockRegistry),
		WithCertificateStore(mockStore),
		WithUpdateLog(mockLog),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("Failed to construct the LinkRegistry: %v", err)
	}

	update, err := l.UpdateCertificate(context.Background(), alphaPEM, livePEM)
	if err != nil {
		t.Fatalf("Expected nil error, but got '%v'", err)
	}

	if recorded != update {
		t.Errorf("Expected the recorded update '%v' to equal the returned update '%v'", recorded, update)
	}
}

func TestLinkRegistry_PublishConfig(t *testing.T) {

	snapshotErr := errors.New("snapshot failure")

	tests := []struct {
		name           string
		dialect        string
		err            error
		mockController func(r *MockRegistry)
	}{
		{
			name:    "Test-1: Default dialect",
			dialect: "",
			mockController: func(r *MockRegistry) {
				r.EXPECT().GetSnapshot(gomock.Any(), false).Return(testSnapshot(), nil)
			},
		},
		{
			name:    "Test-2: json",
			dialect: "json",
			mockController: func(r *MockRegistry) {
				r.EXPECT().GetSnapshot(gomock.Any(), false).Return(testSnapshot(), nil)
			},
		},
		{
			name:    "Test-3: unrealircd3",
			dialect: "unrealircd3",
			mockController: func(r *MockRegistry) {
				r.EXPECT().GetSnapshot(gomock.Any(), false).Return(testSnapshot(), nil)
			},
		},
		{
			name:    "Test-4: Unknown dialect",
			dialect: "inspircd",
			err:     generator.ErrUnknownDialect,
			mockController: func(r *MockRegistry) {
				r.EXPECT().GetSnapshot(gomock.Any(), false).Return(testSnapshot(), nil)
			},
		},
		{
			name:    "Test-5: Snapshot failure",
			dialect: "json",
			err:     snapshotErr,
			mockController: func(r *MockRegistry) {
				r.EXPECT().GetSnapshot(gomock.Any(), false).Return(nil, snapshotErr)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockRegistry := NewMockRegistry(ctrl)
			test.mockController(mockRegistry)

			l, err := NewLinkRegistry(
				WithRegistry(mockRegistry),
				WithCertificateStore(NewMockCertificateStore(ctrl)),
			)
			if err != nil {
				t.Fatalf("Failed to construct the LinkRegistry: %v", err)
			}

			var sink generator.BufferSink
			err = l.PublishConfig(context.Background(), test.dialect, &sink)

			if !errors.Is(err, test.err) {
				t.Fatalf("Expected error '%v', but got '%v'", test.err, err)
			}

			if test.err != nil {
				if sink.Len() != 0 || len(sink.Headers) != 0 || sink.Ended {
					t.Errorf("Expected nothing to be written on failure, but got '%s'", sink.String())
				}
				return
			}

			var expected generator.BufferSink
			if err := generator.Render(test.dialect, &expected, testSnapshot().Servers()); err != nil {
				t.Fatalf("Failed to render the expected output: %v", err)
			}

			if sink.String() != expected.String() {
				t.Errorf("Expected '%s', but got '%s'", expected.String(), sink.String())
			}

			if !sink.Ended {
				t.Errorf("Expected the sink to be ended")
			}
		})
	}
}

func TestPublication_ETag(t *testing.T) {

	json, _ := generator.Lookup("json")
	unreal, _ := generator.Lookup("unrealircd4")

	p1 := Publication{Dialect: json, Snapshot: testSnapshot()}
	p2 := Publication{Dialect: json, Snapshot: testSnapshot()}
	p3 := Publication{Dialect: unreal, Snapshot: testSnapshot()}
	p4 := Publication{Dialect: json, Snapshot: registry.NewSnapshot(nil, now)}

	if p1.ETag() != p2.ETag() {
		t.Errorf("Expected equal snapshots to share an ETag, but got '%s' and '%s'", p1.ETag(), p2.ETag())
	}

	if p1.ETag() == p3.ETag() {
		t.Errorf("Expected dialects to have distinct ETags")
	}

	if p1.ETag() == p4.ETag() {
		t.Errorf("Expected distinct snapshots to have distinct ETags")
	}
}

// TestLinkRegistry_UpdateScenario exercises the registry and the certificate store
// together, on top of an in-memory filesystem.
func TestLinkRegistry_UpdateScenario(t *testing.T) {

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/srv/servers/alpha.crt", []byte(alphaPEM), 0644); err != nil {
		t.Fatalf("Failed to write bootstrap certificate: %v", err)
	}

	live := store.NewDir(fs, "/srv/data")
	loader := registry.NewLoader(store.NewDir(fs, "/srv/servers"), live)

	l, err := NewLinkRegistry(WithRegistry(loader), WithCertificateStore(live))
	if err != nil {
		t.Fatalf("Failed to construct the LinkRegistry: %v", err)
	}

	_, err = l.UpdateCertificate(context.Background(), bravoPEM, livePEM)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Expected error '%v', but got '%v'", ErrUnauthorized, err)
	}

	exists, err := afero.DirExists(fs, "/srv/data")
	if err != nil {
		t.Fatalf("Expected nil error, but got '%v'", err)
	}
	if exists {
		t.Fatalf("Expected an unauthorized update not to touch the filesystem")
	}

	update, err := l.UpdateCertificate(context.Background(), alphaPEM, livePEM)
	if err != nil {
		t.Fatalf("Expected nil error, but got '%v'", err)
	}

	if update.Server != "alpha" {
		t.Errorf("Expected server 'alpha', but got '%s'", update.Server)
	}

	stored, err := afero.ReadFile(fs, "/srv/data/alpha.crt")
	if err != nil {
		t.Fatalf("Expected the live certificate to be stored, but got '%v'", err)
	}
	if string(stored) != livePEM {
		t.Errorf("Expected the stored certificate to equal the submitted one")
	}

	snapshot, err := loader.GetSnapshot(context.Background(), true)
	if err != nil {
		t.Fatalf("Expected nil error, but got '%v'", err)
	}

	record, _ := snapshot.Server("alpha")
	if record.LiveCertFingerprint != mustFingerprint(livePEM) {
		t.Errorf("Expected fingerprint '%s', but got '%s'", mustFingerprint(livePEM), record.LiveCertFingerprint)
	}
}
