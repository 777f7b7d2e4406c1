package uow

import (
	"testing"
	"time"
)

type customer struct {
	Model
	ID       int64 `uow:"key,generated"`
	Name     string
	Tags     []string
	JoinedAt time.Time
	Notes    string `uow:"-"`
}

type country struct {
	Code string `uow:"key"`
	Name string
}

type gormOrder struct {
	ID     uint `gorm:"primaryKey;autoIncrement"`
	Number string
	Cache  string `gorm:"-"`
}

type gormPost struct {
	ID    uint `gorm:"primaryKey"`
	Title string
}

// gormBase has the shape of gorm.Model.
type gormBase struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
}

type gormArticle struct {
	gormBase
	Title string `gorm:"size:100"`
}

type gormComment struct {
	ID   uint
	Body string `gorm:"not null"`
}

type gormSlug struct {
	Slug  string `gorm:"primaryKey"`
	Title string
}

type gormManual struct {
	ID   uint `gorm:"primaryKey;autoIncrement:false"`
	Name string
}

type gormLineItem struct {
	OrderID   uint `gorm:"primaryKey"`
	ProductID uint `gorm:"primaryKey"`
	Quantity  int
}

type bunInvoice struct {
	ID    int64  `bun:"id,pk,autoincrement"`
	Total int64  `bun:"total"`
	Draft string `bun:"-"`
}

type document struct {
	ID    string `uow:"key,generated" bson:"_id"`
	Title string
	Cache string `bson:"-"`
}

type optionalKey struct {
	Ref  *string `uow:"key"`
	Name string
}

type flagged struct {
	ID      int64 `uow:"key,generated"`
	pending bool
}

func (f flagged) IsTransient() bool { return f.pending }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name   string
		entity interface{}
		want   bool
	}{
		{"zero generated key", &customer{Name: "Ada"}, true},
		{"assigned generated key", &customer{ID: 7, Name: "Ada"}, false},
		{"struct value", customer{ID: 7}, false},
		{"no generated fields", &country{}, false},
		{"gorm autoIncrement", &gormOrder{}, true},
		{"gorm assigned", &gormOrder{ID: 3}, false},
		{"gorm integer primaryKey", &gormPost{}, true},
		{"gorm integer primaryKey assigned", &gormPost{ID: 9}, false},
		{"gorm embedded model", &gormArticle{}, true},
		{"gorm embedded model assigned", &gormArticle{gormBase: gormBase{ID: 2}}, false},
		{"gorm conventional ID", &gormComment{}, true},
		{"gorm string primaryKey", &gormSlug{}, false},
		{"gorm autoIncrement disabled", &gormManual{}, false},
		{"gorm composite key", &gormLineItem{}, false},
		{"bun autoincrement", &bunInvoice{}, true},
		{"bun assigned", &bunInvoice{ID: 3}, false},
		{"empty string key", &document{}, true},
		{"override", flagged{ID: 1, pending: true}, true},
		{"not a struct", 42, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.entity); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	joined := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	a := &customer{ID: 1, Name: "Ada", Tags: []string{"vip"}, JoinedAt: joined, Notes: "x"}
	b := &customer{ID: 1, Name: "Ada", Tags: []string{"vip"}, JoinedAt: joined.In(time.FixedZone("CET", 3600)), Notes: "y"}

	if !Equal(a, b) {
		t.Error("Expected persisted entities with equal fields to be equal")
	}

	c := &customer{ID: 1, Name: "Grace", Tags: []string{"vip"}, JoinedAt: joined}
	if Equal(a, c) {
		t.Error("Expected entities differing in a compared field to differ")
	}

	d := &customer{ID: 1, Name: "Ada", Tags: []string{"vip", "new"}, JoinedAt: joined}
	if Equal(a, d) {
		t.Error("Expected entities differing in a slice field to differ")
	}
}

func TestEqualTransientNeverEqual(t *testing.T) {
	a := &customer{Name: "Ada"}
	b := &customer{Name: "Ada"}

	if Equal(a, b) {
		t.Error("Expected transient entities not to be equal")
	}
	if Equal(a, a) {
		t.Error("Expected a transient entity not to equal itself")
	}
	if Equal(a, &customer{ID: 1, Name: "Ada"}) {
		t.Error("Expected transient and persisted entities not to be equal")
	}
}

func TestEqualNilKey(t *testing.T) {
	ref := "r-1"
	a := &optionalKey{Name: "x"}
	b := &optionalKey{Name: "x"}
	if Equal(a, b) {
		t.Error("Expected entities with a nil key not to be equal")
	}

	other := "r-1"
	c := &optionalKey{Ref: &ref, Name: "x"}
	d := &optionalKey{Ref: &other, Name: "x"}
	if !Equal(c, d) {
		t.Error("Expected key pointers to be compared by value")
	}
}

func TestEqualDifferentTypes(t *testing.T) {
	if Equal(&gormOrder{ID: 1}, &bunInvoice{ID: 1}) {
		t.Error("Expected entities of different types not to be equal")
	}
	if Equal(&country{Code: "SE"}, nil) {
		t.Error("Expected nil not to equal an entity")
	}

	a := &customer{ID: 1, Name: "Ada"}
	if Equal(a, *a) || Equal(*a, a) {
		t.Error("Expected a pointer and a value of the same struct not to be equal")
	}
	if !Equal(*a, customer{ID: 1, Name: "Ada"}) {
		t.Error("Expected struct values with equal fields to be equal")
	}
}

func TestEqualExcludedFields(t *testing.T) {
	if !Equal(&gormOrder{ID: 1, Number: "A", Cache: "x"}, &gormOrder{ID: 1, Number: "A", Cache: "y"}) {
		t.Error("Expected gorm:\"-\" fields to be ignored")
	}
	if !Equal(&bunInvoice{ID: 1, Draft: "x"}, &bunInvoice{ID: 1, Draft: "y"}) {
		t.Error("Expected bun:\"-\" fields to be ignored")
	}
	if !Equal(&document{ID: "a", Cache: "x"}, &document{ID: "a", Cache: "y"}) {
		t.Error("Expected bson:\"-\" fields to be ignored")
	}
}

func TestHashCodeConsistentWithEqual(t *testing.T) {
	joined := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &customer{ID: 1, Name: "Ada", Tags: []string{"vip"}, JoinedAt: joined, Notes: "x"}
	b := &customer{ID: 1, Name: "Ada", Tags: []string{"vip"}, JoinedAt: joined.In(time.FixedZone("CET", 3600)), Notes: "y"}

	if !Equal(a, b) {
		t.Fatal("Expected entities to be equal")
	}
	if HashCode(a) != HashCode(b) {
		t.Error("Expected equal entities to share a hash code")
	}

	if HashCode(&country{Code: "SE", Name: "Sweden"}) != HashCode(country{Code: "SE", Name: "Sweden"}) {
		t.Error("Expected pointer and value to share a hash code")
	}
}

func TestHashCodeCachedInModel(t *testing.T) {
	c := &customer{ID: 1, Name: "Ada"}
	first := HashCode(c)

	c.Name = "Grace"
	if HashCode(c) != first {
		t.Error("Expected the hash code to be cached after the first computation")
	}

	fresh := &customer{ID: 1, Name: "Grace"}
	if HashCode(fresh) == first {
		t.Error("Expected a different hash for different field values")
	}
}

func TestHashCodeTransientUsesIdentity(t *testing.T) {
	c := &customer{Name: "Ada"}
	if HashCode(c) != HashCode(c) {
		t.Error("Expected a stable identity hash for the same instance")
	}

	c.ID = 9
	if HashCode(c) != HashCode(&customer{ID: 9, Name: "Ada"}) {
		t.Error("Expected a value hash once the key is assigned")
	}
}

func TestHashCodeMapsIgnoreOrder(t *testing.T) {
	type tagged struct {
		Code  string `uow:"key"`
		Attrs map[string]int
	}

	a := tagged{Code: "a", Attrs: map[string]int{"x": 1, "y": 2, "z": 3}}
	b := tagged{Code: "a", Attrs: map[string]int{"z": 3, "y": 2, "x": 1}}
	if !Equal(a, b) || HashCode(a) != HashCode(b) {
		t.Error("Expected maps with the same entries to be equal and hash alike")
	}
}
