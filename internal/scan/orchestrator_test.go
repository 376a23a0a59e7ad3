package scan

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gitlab.com/yelinaung/billbox/internal/extract"
	"gitlab.com/yelinaung/billbox/internal/gmail"
	"gitlab.com/yelinaung/billbox/internal/models"
)

type fakeSession struct {
	results     map[string][]string
	searchErrs  map[string]error
	messages    map[string]*gmail.MessageDetails
	attachments map[string][]byte
	attachErr   error
}

func (f *fakeSession) Search(_ context.Context, query string, _ int64) ([]string, error) {
	if err := f.searchErrs[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

func (f *fakeSession) Message(_ context.Context, id string) (*gmail.MessageDetails, error) {
	msg, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("no such message %s", id)
	}
	return msg, nil
}

func (f *fakeSession) Attachment(_ context.Context, _, attachmentID string) ([]byte, error) {
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	return f.attachments[attachmentID], nil
}

type fakeMail struct {
	session MailSession
	openErr error
}

func (f *fakeMail) Open(_ context.Context, _ models.EmailAccount) (MailSession, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.session, nil
}

// fakeExtractor keys responses on the email subject so one test can give
// different messages different outcomes.
type fakeExtractor struct {
	bySubject map[string]*extract.InvoiceData
	err       error
}

func (f *fakeExtractor) ParseInvoice(_ context.Context, _, emailSubject string) (*extract.InvoiceData, error) {
	if f.err != nil {
		return nil, f.err
	}
	if d, ok := f.bySubject[emailSubject]; ok {
		return d, nil
	}
	return &extract.InvoiceData{Provider: "Unknown", Currency: models.DefaultCurrency}, nil
}

func (f *fakeExtractor) ParseEmailBody(_ context.Context, _, emailSubject, _ string) (*extract.InvoiceData, error) {
	return f.ParseInvoice(nil, "", emailSubject)
}

type fakePDFStore struct {
	stored map[string][]byte
	err    error
}

func (f *fakePDFStore) Store(_ context.Context, userID uuid.UUID, filename string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.stored == nil {
		f.stored = make(map[string][]byte)
	}
	key := fmt.Sprintf("invoices/%s/%s", userID, filename)
	f.stored[key] = data
	return key, nil
}

type fakeInvoiceStore struct {
	existing map[string]bool
	created  []*models.Invoice
}

func (f *fakeInvoiceStore) ExistsByMessageID(_ context.Context, _ uuid.UUID, messageID string) (bool, error) {
	return f.existing[messageID], nil
}

func (f *fakeInvoiceStore) CreateFromScan(_ context.Context, inv *models.Invoice) (bool, error) {
	for _, prev := range f.created {
		if prev.GmailMessageID != nil && inv.GmailMessageID != nil &&
			*prev.GmailMessageID == *inv.GmailMessageID && prev.UserID == inv.UserID {
			return false, nil
		}
	}
	f.created = append(f.created, inv)
	return true, nil
}

type fakeProviderStore struct {
	providers []models.Provider
	getErr    error
}

func (f *fakeProviderStore) ListForUser(_ context.Context, _ uuid.UUID) ([]models.Provider, error) {
	return f.providers, nil
}

func (f *fakeProviderStore) GetForUser(_ context.Context, id, _ uuid.UUID) (*models.Provider, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, p := range f.providers {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("failed to get provider: %w", pgx.ErrNoRows)
}

type fakeAccountStore struct {
	accounts []models.EmailAccount
}

func (f *fakeAccountStore) ListByUser(_ context.Context, _ uuid.UUID) ([]models.EmailAccount, error) {
	return f.accounts, nil
}

func testProvider(name string) models.Provider {
	return models.Provider{
		ID:          uuid.New(),
		Name:        name,
		SenderEmail: name + ".com",
		SearchQuery: models.BuildSearchQuery(name + ".com"),
		IsDefault:   true,
	}
}

func testAccount(userID uuid.UUID) models.EmailAccount {
	return models.EmailAccount{
		ID:       uuid.New(),
		UserID:   userID,
		Provider: models.MailProviderGmail,
		Email:    "user@example.com",
	}
}

func amount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRun_NoMailbox(t *testing.T) {
	t.Parallel()

	svc := NewService(&fakeMail{}, &fakeExtractor{}, &fakePDFStore{},
		&fakeInvoiceStore{}, &fakeProviderStore{}, &fakeAccountStore{}, 10)

	_, err := svc.Run(context.Background(), uuid.New(), nil)
	require.ErrorIs(t, err, ErrNoMailbox)
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	account := testAccount(userID)
	provider := testProvider("spotify")
	emailDate := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	session := &fakeSession{
		results: map[string][]string{
			provider.SearchQuery: {"m1", "m2", "m3"},
		},
		messages: map[string]*gmail.MessageDetails{
			"m1": {
				ID: "m1", Subject: "Receipt with amount", Date: &emailDate,
				Attachments: []gmail.Attachment{{ID: "a1", Filename: "receipt.pdf", MimeType: "application/pdf"}},
			},
			"m2": {
				ID: "m2", Subject: "Receipt without amount", Date: &emailDate,
				Attachments: []gmail.Attachment{{ID: "a2", Filename: "receipt2.pdf", MimeType: "application/pdf"}},
			},
			"m3": {
				ID: "m3", Subject: "Body only charge", Date: &emailDate,
				BodyText: "You were charged 9.99 EUR",
			},
		},
		attachments: map[string][]byte{
			"a1": []byte("not really a pdf"),
			"a2": []byte("not really a pdf"),
		},
	}
	extractor := &fakeExtractor{
		bySubject: map[string]*extract.InvoiceData{
			"Receipt with amount": {
				Provider: "Spotify", Amount: amount("9.99"), Currency: "EUR",
				Date: time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC),
			},
			"Receipt without amount": {Provider: "Spotify", Currency: "EUR"},
			"Body only charge":       {Provider: "Spotify", Amount: amount("9.99"), Currency: "EUR"},
		},
	}
	invoices := &fakeInvoiceStore{}

	svc := NewService(&fakeMail{session: session}, extractor, &fakePDFStore{},
		invoices, &fakeProviderStore{providers: []models.Provider{provider}},
		&fakeAccountStore{accounts: []models.EmailAccount{account}}, 10)

	summary, err := svc.Run(context.Background(), userID, nil)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Processed)
	require.Equal(t, 0, summary.Skipped)
	require.Empty(t, summary.Errors)
	require.Len(t, invoices.created, 3)

	byMessage := make(map[string]*models.Invoice)
	for _, inv := range invoices.created {
		require.NotNil(t, inv.GmailMessageID)
		byMessage[*inv.GmailMessageID] = inv
	}

	// PDF with an extracted amount is fully resolved.
	m1 := byMessage["m1"]
	require.Equal(t, models.InvoiceStatusProcessed, m1.Status)
	require.NotNil(t, m1.PDFPath)
	require.True(t, m1.HasAmount())
	require.NotNil(t, m1.InvoiceDate)
	require.Equal(t, "Spotify", m1.Provider)
	require.Equal(t, &account.ID, m1.EmailAccountID)

	// PDF without an amount waits for manual follow-up.
	m2 := byMessage["m2"]
	require.Equal(t, models.InvoiceStatusPending, m2.Status)
	require.NotNil(t, m2.PDFPath)
	require.False(t, m2.HasAmount())

	// No attachment keeps needs_pdf even when the body yields an amount.
	m3 := byMessage["m3"]
	require.Equal(t, models.InvoiceStatusNeedsPDF, m3.Status)
	require.Nil(t, m3.PDFPath)
	require.True(t, m3.HasAmount())
}

func TestRun_ProviderNameFromExtraction(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	provider := testProvider("music-sub")
	session := &fakeSession{
		results: map[string][]string{provider.SearchQuery: {"named", "anon"}},
		messages: map[string]*gmail.MessageDetails{
			"named": {ID: "named", Subject: "Spotify receipt", BodyText: "charged 9.99"},
			"anon":  {ID: "anon", Subject: "Some receipt", BodyText: "charged 4.99"},
		},
	}
	extractor := &fakeExtractor{
		bySubject: map[string]*extract.InvoiceData{
			"Spotify receipt": {Provider: "Spotify AB", Amount: amount("9.99"), Currency: "EUR"},
			"Some receipt":    {Provider: extract.UnknownProvider, Amount: amount("4.99"), Currency: "EUR"},
		},
	}
	invoices := &fakeInvoiceStore{}

	svc := NewService(&fakeMail{session: session}, extractor, &fakePDFStore{},
		invoices, &fakeProviderStore{providers: []models.Provider{provider}},
		&fakeAccountStore{accounts: []models.EmailAccount{testAccount(userID)}}, 10)

	_, err := svc.Run(context.Background(), userID, nil)
	require.NoError(t, err)
	require.Len(t, invoices.created, 2)

	byMessage := make(map[string]*models.Invoice)
	for _, inv := range invoices.created {
		byMessage[*inv.GmailMessageID] = inv
	}

	// The name read off the document replaces the configured one.
	require.Equal(t, "Spotify AB", byMessage["named"].Provider)
	// The Unknown placeholder falls back to the configured name.
	require.Equal(t, "music-sub", byMessage["anon"].Provider)
}

func TestRun_SkipsKnownMessages(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	provider := testProvider("netflix")
	session := &fakeSession{
		results: map[string][]string{provider.SearchQuery: {"seen", "new"}},
		messages: map[string]*gmail.MessageDetails{
			"new": {ID: "new", Subject: "Fresh", BodyText: "charge"},
		},
	}
	invoices := &fakeInvoiceStore{existing: map[string]bool{"seen": true}}

	svc := NewService(&fakeMail{session: session}, &fakeExtractor{}, &fakePDFStore{},
		invoices, &fakeProviderStore{providers: []models.Provider{provider}},
		&fakeAccountStore{accounts: []models.EmailAccount{testAccount(userID)}}, 10)

	summary, err := svc.Run(context.Background(), userID, nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 1, summary.Skipped)
	require.Len(t, invoices.created, 1)
}

func TestRun_InsertConflictCountsAsSkipped(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	provider := testProvider("apple")
	// The same message matched by two providers: the precheck passes both
	// times in one run but the second insert hits the conflict guard.
	other := testProvider("apple-billing")
	session := &fakeSession{
		results: map[string][]string{
			provider.SearchQuery: {"dup"},
			other.SearchQuery:    {"dup"},
		},
		messages: map[string]*gmail.MessageDetails{
			"dup": {ID: "dup", Subject: "Receipt", BodyText: "charge"},
		},
	}
	invoices := &fakeInvoiceStore{}

	svc := NewService(&fakeMail{session: session}, &fakeExtractor{}, &fakePDFStore{},
		invoices, &fakeProviderStore{providers: []models.Provider{provider, other}},
		&fakeAccountStore{accounts: []models.EmailAccount{testAccount(userID)}}, 10)

	summary, err := svc.Run(context.Background(), userID, nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 1, summary.Skipped)
	require.Len(t, invoices.created, 1)
}

func TestRun_AuthExpiryStopsRunKeepingPartialWork(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	account := testAccount(userID)
	good := testProvider("aaa-first")
	bad := testProvider("zzz-second")
	session := &fakeSession{
		results: map[string][]string{good.SearchQuery: {"m1"}},
		searchErrs: map[string]error{
			bad.SearchQuery: gmail.NewAuthError(errors.New("invalid_grant")),
		},
		messages: map[string]*gmail.MessageDetails{
			"m1": {ID: "m1", Subject: "Receipt", BodyText: "charge"},
		},
	}
	invoices := &fakeInvoiceStore{}

	svc := NewService(&fakeMail{session: session}, &fakeExtractor{}, &fakePDFStore{},
		invoices, &fakeProviderStore{providers: []models.Provider{good, bad}},
		&fakeAccountStore{accounts: []models.EmailAccount{account}}, 10)

	summary, err := svc.Run(context.Background(), userID, nil)
	require.Error(t, err)

	var reconnect *ReconnectRequiredError
	require.ErrorAs(t, err, &reconnect)
	require.Equal(t, account.Email, reconnect.Email)
	require.True(t, gmail.IsAuthError(err))

	require.NotNil(t, summary)
	require.Equal(t, 1, summary.Processed)
	require.Len(t, invoices.created, 1)
}

func TestRun_SoftSearchErrorContinues(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	broken := testProvider("aaa-broken")
	working := testProvider("zzz-working")
	session := &fakeSession{
		results: map[string][]string{working.SearchQuery: {"m1"}},
		searchErrs: map[string]error{
			broken.SearchQuery: errors.New("backend unavailable"),
		},
		messages: map[string]*gmail.MessageDetails{
			"m1": {ID: "m1", Subject: "Receipt", BodyText: "charge"},
		},
	}

	svc := NewService(&fakeMail{session: session}, &fakeExtractor{}, &fakePDFStore{},
		&fakeInvoiceStore{}, &fakeProviderStore{providers: []models.Provider{broken, working}},
		&fakeAccountStore{accounts: []models.EmailAccount{testAccount(userID)}}, 10)

	summary, err := svc.Run(context.Background(), userID, nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.Len(t, summary.Errors, 1)
	require.Contains(t, summary.Errors[0], "aaa-broken")
}

func TestRun_ScopedToOneProvider(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	wanted := testProvider("spotify")
	ignored := testProvider("netflix")
	session := &fakeSession{
		results: map[string][]string{
			wanted.SearchQuery:  {"m1"},
			ignored.SearchQuery: {"m2"},
		},
		messages: map[string]*gmail.MessageDetails{
			"m1": {ID: "m1", Subject: "Receipt", BodyText: "charge"},
			"m2": {ID: "m2", Subject: "Receipt", BodyText: "charge"},
		},
	}
	invoices := &fakeInvoiceStore{}

	svc := NewService(&fakeMail{session: session}, &fakeExtractor{}, &fakePDFStore{},
		invoices, &fakeProviderStore{providers: []models.Provider{wanted, ignored}},
		&fakeAccountStore{accounts: []models.EmailAccount{testAccount(userID)}}, 10)

	summary, err := svc.Run(context.Background(), userID, &wanted.ID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.Len(t, invoices.created, 1)
	require.Equal(t, "m1", *invoices.created[0].GmailMessageID)
}

func TestRun_UnknownProviderScope(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	svc := NewService(&fakeMail{session: &fakeSession{}}, &fakeExtractor{}, &fakePDFStore{},
		&fakeInvoiceStore{}, &fakeProviderStore{},
		&fakeAccountStore{accounts: []models.EmailAccount{testAccount(userID)}}, 10)

	unknown := uuid.New()
	_, err := svc.Run(context.Background(), userID, &unknown)
	require.ErrorIs(t, err, ErrProviderNotFound)
}

func TestRun_ProviderLookupFailureIsNotNotFound(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	provider := testProvider("spotify")
	stores := &fakeProviderStore{
		providers: []models.Provider{provider},
		getErr:    errors.New("connection refused"),
	}
	svc := NewService(&fakeMail{session: &fakeSession{}}, &fakeExtractor{}, &fakePDFStore{},
		&fakeInvoiceStore{}, stores,
		&fakeAccountStore{accounts: []models.EmailAccount{testAccount(userID)}}, 10)

	_, err := svc.Run(context.Background(), userID, &provider.ID)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrProviderNotFound)
	require.Contains(t, err.Error(), "connection refused")
}

func TestRun_StoreFailureFallsBackToBody(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	provider := testProvider("spotify")
	session := &fakeSession{
		results: map[string][]string{provider.SearchQuery: {"m1"}},
		messages: map[string]*gmail.MessageDetails{
			"m1": {
				ID: "m1", Subject: "Receipt", BodyText: "charged 9.99",
				Attachments: []gmail.Attachment{{ID: "a1", Filename: "r.pdf", MimeType: "application/pdf"}},
			},
		},
		attachments: map[string][]byte{"a1": []byte("pdf bytes")},
	}
	invoices := &fakeInvoiceStore{}

	svc := NewService(&fakeMail{session: session}, &fakeExtractor{},
		&fakePDFStore{err: errors.New("bucket unavailable")},
		invoices, &fakeProviderStore{providers: []models.Provider{provider}},
		&fakeAccountStore{accounts: []models.EmailAccount{testAccount(userID)}}, 10)

	summary, err := svc.Run(context.Background(), userID, nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.NotEmpty(t, summary.Errors)

	require.Len(t, invoices.created, 1)
	inv := invoices.created[0]
	require.Equal(t, models.InvoiceStatusNeedsPDF, inv.Status)
	require.Nil(t, inv.PDFPath)
}

func TestDeriveStatus(t *testing.T) {
	t.Parallel()

	withAmount := &extract.InvoiceData{Provider: "Spotify", Amount: amount("9.99"), Currency: "EUR"}
	withoutAmount := &extract.InvoiceData{Provider: "Spotify", Currency: "EUR"}

	tests := []struct {
		name     string
		hasPDF   bool
		data     *extract.InvoiceData
		expected string
	}{
		{name: "pdf and amount", hasPDF: true, data: withAmount, expected: models.InvoiceStatusProcessed},
		{name: "pdf without amount", hasPDF: true, data: withoutAmount, expected: models.InvoiceStatusPending},
		{name: "pdf without data", hasPDF: true, data: nil, expected: models.InvoiceStatusPending},
		{name: "no pdf with amount", hasPDF: false, data: withAmount, expected: models.InvoiceStatusNeedsPDF},
		{name: "no pdf no data", hasPDF: false, data: nil, expected: models.InvoiceStatusNeedsPDF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, deriveStatus(tt.hasPDF, tt.data))
		})
	}
}
