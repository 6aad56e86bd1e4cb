package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/arturoeanton/campus-market/internal/domain"
	"github.com/arturoeanton/campus-market/internal/middleware"
	"github.com/arturoeanton/campus-market/internal/pkg/id"
	"github.com/arturoeanton/campus-market/internal/port"
)

// Persisted marketplace keys. Renaming any of them orphans existing data.
const (
	KeyProducts         = "cm_products_v1"
	KeyUsers            = "cm_users_v1"
	KeyChats            = "cm_chats_v1"
	KeyFavorites        = "cm_favorites_v1"
	KeyPurchaseRequests = "cm_purchase_requests_v1"
)

// MarketService is the local data store: catalog, chats, favorites,
// purchase requests and the device's user profile. Every mutation is
// persisted before it becomes visible to readers.
type MarketService struct {
	kv       port.KVStore
	validate *validator.Validate
	now      func() time.Time

	mu        sync.RWMutex
	products  []domain.Product
	profile   *domain.Profile
	chats     []domain.Chat
	favorites []string
	requests  []domain.PurchaseRequest
	chatIndex map[string]string // chatKey -> chat id
}

// NewMarketService loads the store from kv. Values that cannot be decoded
// are replaced by empty defaults.
func NewMarketService(ctx context.Context, kv port.KVStore) *MarketService {
	m := &MarketService{
		kv:       kv,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
	}

	loadJSON(ctx, kv, KeyProducts, &m.products)
	loadJSON(ctx, kv, KeyUsers, &m.profile)
	loadJSON(ctx, kv, KeyChats, &m.chats)
	loadJSON(ctx, kv, KeyFavorites, &m.favorites)
	loadJSON(ctx, kv, KeyPurchaseRequests, &m.requests)

	m.chatIndex = make(map[string]string, len(m.chats))
	for _, c := range m.chats {
		k := chatKey(c.ProductID, c.Participants)
		if _, dup := m.chatIndex[k]; dup {
			continue // newest-first, the first thread wins
		}
		m.chatIndex[k] = c.ID
	}

	slog.Info("marketplace store loaded",
		"products", len(m.products),
		"chats", len(m.chats),
		"favorites", len(m.favorites),
		"purchase_requests", len(m.requests),
	)
	return m
}

// --- Products ---

// CreateListing validates a seller's input and adds it to the catalog.
func (m *MarketService) CreateListing(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	if err := m.validate.Struct(in); err != nil {
		return domain.Product{}, fmt.Errorf("%w: %v", port.ErrInvalidInput, err)
	}
	return m.AddProduct(ctx, in)
}

// AddProduct assigns an id and timestamp, marks the product available and
// puts it first in the catalog.
func (m *MarketService) AddProduct(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	p := domain.Product{
		ID:          id.New(id.Product),
		Title:       in.Title,
		Price:       in.Price,
		Description: in.Description,
		Images:      nonNil(in.Images),
		Condition:   in.Condition,
		Category:    in.Category,
		Tags:        uniqueStrings(in.Tags),
		SellerID:    in.SellerID,
		PostedAt:    m.now(),
		Status:      domain.ProductAvailable,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	products := append([]domain.Product{p}, m.products...)
	err := m.persist(ctx, map[string]any{KeyProducts: products})
	middleware.RecordStoreMutation("add_product", err)
	if err != nil {
		return domain.Product{}, err
	}
	m.products = products
	return p, nil
}

// UpdateProductStatus sets the status of a product. Unknown ids are ignored.
func (m *MarketService) UpdateProductStatus(ctx context.Context, productID string, status domain.ProductStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: product status %q", port.ErrInvalidInput, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	products, found := withProductStatus(m.products, productID, status)
	if !found {
		return nil
	}
	err := m.persist(ctx, map[string]any{KeyProducts: products})
	middleware.RecordStoreMutation("update_product_status", err)
	if err != nil {
		return err
	}
	m.products = products
	return nil
}

// ListProducts returns the catalog newest-first, filtered by a
// case-insensitive match over title, description and tags.
func (m *MarketService) ListProducts(query string) []domain.Product {
	q := strings.ToLower(strings.TrimSpace(query))

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		if q == "" || strings.Contains(searchText(p), q) {
			out = append(out, p)
		}
	}
	return out
}

// ListProductsBySeller returns the listings posted by sellerID.
func (m *MarketService) ListProductsBySeller(sellerID string) []domain.Product {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.Product{}
	for _, p := range m.products {
		if p.SellerID == sellerID {
			out = append(out, p)
		}
	}
	return out
}

// GetProduct returns a product by id.
func (m *MarketService) GetProduct(productID string) (domain.Product, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.products {
		if p.ID == productID {
			return p, true
		}
	}
	return domain.Product{}, false
}

// SeedSampleCatalog fills an empty catalog with sample listings. It
// returns the number of listings added.
func (m *MarketService) SeedSampleCatalog(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.products) > 0 {
		return 0, nil
	}

	titles := []string{"Calculus Book", "Mechanical Kit", "Laptop Sleeve", "Graphing Calculator", "USB Microphone", "Data Structures Book"}
	prices := []float64{150, 450, 299, 900, 1200, 200}
	categories := []string{"Books", "Electronics", "Accessories"}

	now := m.now()
	products := make([]domain.Product, 0, len(titles))
	for i := range titles {
		condition := domain.ConditionGood
		if i%2 == 0 {
			condition = domain.ConditionLikeNew
		}
		products = append(products, domain.Product{
			ID:          id.New(id.Product),
			Title:       titles[i],
			Price:       prices[i],
			Description: "A well-maintained item perfect for students.",
			Images:      []string{fmt.Sprintf("/images/sample-%d.svg", i+1)},
			Condition:   condition,
			Category:    categories[i%len(categories)],
			Tags:        []string{"campus", "student"},
			SellerID:    "seller_1",
			PostedAt:    now,
			Status:      domain.ProductAvailable,
		})
	}

	err := m.persist(ctx, map[string]any{KeyProducts: products})
	middleware.RecordStoreMutation("seed_catalog", err)
	if err != nil {
		return 0, err
	}
	m.products = products
	return len(products), nil
}

// --- Chats ---

// AddChatIfMissing returns the chat for productID between participants,
// creating it when none exists. Participant order does not matter for
// identity; the stored order is the order of the first call.
func (m *MarketService) AddChatIfMissing(ctx context.Context, productID string, participants []string) (domain.Chat, error) {
	if productID == "" || len(participants) != 2 || participants[0] == "" || participants[1] == "" {
		return domain.Chat{}, fmt.Errorf("%w: a chat needs a product and two participants", port.ErrInvalidInput)
	}
	key := chatKey(productID, participants)

	m.mu.Lock()
	defer m.mu.Unlock()

	if chatID, ok := m.chatIndex[key]; ok {
		if c, _, found := findChat(m.chats, chatID); found {
			return cloneChat(c), nil
		}
	}

	c := domain.Chat{
		ID:           id.New(id.Chat),
		ProductID:    productID,
		Participants: slices.Clone(participants),
		Messages:     []domain.Message{},
	}
	chats := append([]domain.Chat{c}, m.chats...)
	err := m.persist(ctx, map[string]any{KeyChats: chats})
	middleware.RecordStoreMutation("add_chat", err)
	if err != nil {
		return domain.Chat{}, err
	}
	m.chats = chats
	m.chatIndex[key] = c.ID
	return cloneChat(c), nil
}

// PushMessage appends a message to a chat. It returns nil when the chat
// does not exist.
func (m *MarketService) PushMessage(ctx context.Context, chatID, from, text string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, idx, found := findChat(m.chats, chatID)
	if !found {
		return nil, nil
	}

	msg := domain.Message{ID: id.New(id.Message), From: from, Text: text, At: m.now()}
	c.Messages = append(slices.Clone(c.Messages), msg)

	chats := slices.Clone(m.chats)
	chats[idx] = c
	err := m.persist(ctx, map[string]any{KeyChats: chats})
	middleware.RecordStoreMutation("push_message", err)
	if err != nil {
		return nil, err
	}
	m.chats = chats
	return &msg, nil
}

// GetChat returns a chat by id.
func (m *MarketService) GetChat(chatID string) (domain.Chat, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, _, found := findChat(m.chats, chatID)
	if !found {
		return domain.Chat{}, false
	}
	return cloneChat(c), true
}

// ListChats returns the chats userID takes part in, newest first. An empty
// userID lists every chat.
func (m *MarketService) ListChats(userID string) []domain.Chat {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Chat, 0, len(m.chats))
	for _, c := range m.chats {
		if userID == "" || slices.Contains(c.Participants, userID) {
			out = append(out, cloneChat(c))
		}
	}
	return out
}

// --- Favorites ---

// ToggleFavorite adds or removes productID from the favorites and reports
// whether it is a favorite afterwards. The product does not need to exist.
func (m *MarketService) ToggleFavorite(ctx context.Context, productID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var favorites []string
	favorited := !slices.Contains(m.favorites, productID)
	if favorited {
		favorites = append(slices.Clone(m.favorites), productID)
	} else {
		favorites = slices.DeleteFunc(slices.Clone(m.favorites), func(f string) bool { return f == productID })
	}

	err := m.persist(ctx, map[string]any{KeyFavorites: nonNil(favorites)})
	middleware.RecordStoreMutation("toggle_favorite", err)
	if err != nil {
		return !favorited, err
	}
	m.favorites = favorites
	return favorited, nil
}

// Favorites returns the favorite product ids in the order they were added.
func (m *MarketService) Favorites() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return nonNil(slices.Clone(m.favorites))
}

// IsFavorite reports whether productID is a favorite.
func (m *MarketService) IsFavorite(productID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.favorites, productID)
}

// --- Purchase requests ---

// CreatePurchaseRequest records a pending request from buyerID. An
// available product moves to requested in the same write. Several pending
// requests for one product are allowed.
func (m *MarketService) CreatePurchaseRequest(ctx context.Context, productID, buyerID, sellerID string) (domain.PurchaseRequest, error) {
	if productID == "" || buyerID == "" || sellerID == "" {
		return domain.PurchaseRequest{}, fmt.Errorf("%w: product, buyer and seller are required", port.ErrInvalidInput)
	}

	r := domain.PurchaseRequest{
		ID:        id.New(id.Request),
		ProductID: productID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		Status:    domain.RequestPending,
		CreatedAt: m.now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	requests := append([]domain.PurchaseRequest{r}, m.requests...)
	writes := map[string]any{KeyPurchaseRequests: requests}

	products := m.products
	if p, ok := findProduct(m.products, productID); ok && p.Status == domain.ProductAvailable {
		products, _ = withProductStatus(m.products, productID, domain.ProductRequested)
		writes[KeyProducts] = products
	}

	err := m.persist(ctx, writes)
	middleware.RecordStoreMutation("create_purchase_request", err)
	if err != nil {
		return domain.PurchaseRequest{}, err
	}
	m.requests = requests
	m.products = products
	return r, nil
}

// UpdatePurchaseRequest sets the status of a request. Accepting a request
// marks its product sold in the same write, so no reader ever sees one
// change without the other. A requested product with no pending request
// left goes back to available. Unknown ids are ignored.
func (m *MarketService) UpdatePurchaseRequest(ctx context.Context, requestID string, status domain.RequestStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: request status %q", port.ErrInvalidInput, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := slices.IndexFunc(m.requests, func(r domain.PurchaseRequest) bool { return r.ID == requestID })
	if idx < 0 {
		return nil
	}

	requests := slices.Clone(m.requests)
	requests[idx].Status = status
	writes := map[string]any{KeyPurchaseRequests: requests}

	products := m.products
	if next, ok := productStatusAfter(m.products, requests, requests[idx].ProductID, status); ok {
		products, _ = withProductStatus(m.products, requests[idx].ProductID, next)
		writes[KeyProducts] = products
	}

	err := m.persist(ctx, writes)
	middleware.RecordStoreMutation("update_purchase_request", err)
	if err != nil {
		return err
	}
	m.requests = requests
	m.products = products
	return nil
}

// GetPurchaseRequest returns a request by id.
func (m *MarketService) GetPurchaseRequest(requestID string) (domain.PurchaseRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.requests {
		if r.ID == requestID {
			return r, true
		}
	}
	return domain.PurchaseRequest{}, false
}

// ListPurchaseRequests returns the requests userID is buyer or seller of,
// newest first. An empty userID lists every request.
func (m *MarketService) ListPurchaseRequests(userID string) []domain.PurchaseRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.PurchaseRequest, 0, len(m.requests))
	for _, r := range m.requests {
		if userID == "" || r.BuyerID == userID || r.SellerID == userID {
			out = append(out, r)
		}
	}
	return out
}

// --- Profile ---

// Profile returns the local user profile, if one was saved.
func (m *MarketService) Profile() (domain.Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.profile == nil {
		return domain.Profile{}, false
	}
	return *m.profile, true
}

// UpdateProfile merges patch into the local profile, creating it with a
// fresh id and the name "You" when none exists yet.
func (m *MarketService) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := domain.Profile{ID: id.New(id.User), Name: "You"}
	if m.profile != nil {
		next = *m.profile
	}
	applyPatch(&next, patch)

	err := m.persist(ctx, map[string]any{KeyUsers: next})
	middleware.RecordStoreMutation("update_profile", err)
	if err != nil {
		return domain.Profile{}, err
	}
	m.profile = &next
	return next, nil
}

// persist encodes and writes values in one SetMany. Callers hold m.mu.
func (m *MarketService) persist(ctx context.Context, values map[string]any) error {
	entries := make(map[string][]byte, len(values))
	for key, v := range values {
		if err := putJSON(entries, key, v); err != nil {
			return err
		}
	}
	if err := m.kv.SetMany(ctx, entries); err != nil {
		return fmt.Errorf("persist marketplace: %w", err)
	}
	return nil
}

func loadJSON[T any](ctx context.Context, kv port.KVStore, key string, dst *T) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		slog.Warn("could not read persisted value, using default", "key", key, "error", err)
		return
	}
	if !ok {
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		slog.Warn("persisted value is malformed, using default", "key", key, "error", err)
		var zero T
		*dst = zero
	}
}

// chatKey is the canonical thread identity: the product plus the sorted
// participant pair.
func chatKey(productID string, participants []string) string {
	sorted := slices.Clone(participants)
	slices.Sort(sorted)
	return productID + "\x00" + strings.Join(sorted, "\x00")
}

func findChat(chats []domain.Chat, chatID string) (domain.Chat, int, bool) {
	for i, c := range chats {
		if c.ID == chatID {
			return c, i, true
		}
	}
	return domain.Chat{}, -1, false
}

func findProduct(products []domain.Product, productID string) (domain.Product, bool) {
	for _, p := range products {
		if p.ID == productID {
			return p, true
		}
	}
	return domain.Product{}, false
}

// productStatusAfter decides the product status once a request for it moved
// to status. It reports false when the product is absent or unchanged.
func productStatusAfter(products []domain.Product, requests []domain.PurchaseRequest, productID string, status domain.RequestStatus) (domain.ProductStatus, bool) {
	p, ok := findProduct(products, productID)
	if !ok || p.Status == domain.ProductSold {
		return "", false
	}
	if status == domain.RequestAccepted {
		return domain.ProductSold, true
	}

	pending := slices.ContainsFunc(requests, func(r domain.PurchaseRequest) bool {
		return r.ProductID == productID && r.Status == domain.RequestPending
	})
	switch {
	case pending && p.Status == domain.ProductAvailable:
		return domain.ProductRequested, true
	case !pending && p.Status == domain.ProductRequested:
		return domain.ProductAvailable, true
	}
	return "", false
}

// withProductStatus returns a copy of products with productID set to status.
func withProductStatus(products []domain.Product, productID string, status domain.ProductStatus) ([]domain.Product, bool) {
	idx := slices.IndexFunc(products, func(p domain.Product) bool { return p.ID == productID })
	if idx < 0 {
		return products, false
	}
	out := slices.Clone(products)
	out[idx].Status = status
	return out, true
}

func cloneChat(c domain.Chat) domain.Chat {
	c.Participants = slices.Clone(c.Participants)
	c.Messages = nonNil(slices.Clone(c.Messages))
	return c
}

func searchText(p domain.Product) string {
	return strings.ToLower(p.Title + " " + p.Description + " " + strings.Join(p.Tags, " "))
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func applyPatch(p *domain.Profile, patch domain.ProfilePatch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Email != nil {
		p.Email = *patch.Email
	}
	if patch.Avatar != nil {
		p.Avatar = *patch.Avatar
	}
	if patch.Year != nil {
		p.Year = *patch.Year
	}
	if patch.Department != nil {
		p.Department = *patch.Department
	}
}
