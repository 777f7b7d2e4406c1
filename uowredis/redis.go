// Package uowredis provides Redis backed providers for units of work.
//
// Entities are stored as JSON under "<namespace>:<key>", where the namespace
// is the lower-cased type name unless the entity implements Namespacer.
// Writes are queued in a MULTI/EXEC pipeline and applied on Commit; reads go
// straight to the provider's connection and do not see queued writes.
// Isolation levels have no effect.
package uowredis

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/lemmego/uow"
)

// Namespacer overrides the key namespace of an entity type.
type Namespacer interface {
	Namespace() string
}

// =====================================
// Provider Implementation
// =====================================

// Provider implements uow.EntityProvider on a dedicated connection of a
// shared *redis.Client.
type Provider struct {
	*uow.Resource[*transaction]
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var (
	_ uow.EntityProvider = (*Provider)(nil)
	_ uow.Pinger         = (*Provider)(nil)
)

// Settings tune how a Provider stores entities.
type Settings struct {
	// KeyPrefix is prepended to every key, including query patterns.
	KeyPrefix string
	// TTL expires inserted and updated entities; zero keeps them forever.
	TTL time.Duration
}

// NewProvider creates a provider over client. Its connection is taken from
// the pool on first use.
func NewProvider(client *redis.Client, settings Settings, level uow.IsolationLevel, opts ...uow.Option) *Provider {
	p := &Provider{client: client, prefix: settings.KeyPrefix, ttl: settings.TTL}
	p.Resource = uow.NewResource[*transaction](level, p.connect, opts...)
	return p
}

// Client returns the shared client.
func (p *Provider) Client() *redis.Client {
	return p.client
}

func (p *Provider) connect(ctx context.Context) (uow.Conn[*transaction], error) {
	conn := p.client.Conn(ctx)
	if err := conn.Ping(ctx).Err(); err != nil {
		conn.Close()
		return nil, err
	}
	return &connection{conn: conn}, nil
}

// Query loads every entity whose key matches the glob pattern statement into
// dest, a *[]T, in key order. Each ? in the pattern is replaced by the next
// argument.
func (p *Provider) Query(ctx context.Context, dest interface{}, statement string, args ...interface{}) error {
	tx, err := p.Tx(ctx)
	if err != nil {
		return err
	}

	slice := reflect.ValueOf(dest)
	if slice.Kind() != reflect.Ptr || slice.Elem().Kind() != reflect.Slice {
		return uow.NewError(uow.ErrorKindInvalidArgument, fmt.Sprintf("dest must be a pointer to a slice, got %T", dest))
	}
	slice = slice.Elem()

	pattern, err := bind(statement, args)
	if err != nil {
		return err
	}

	var keys []string
	iter := tx.conn.Scan(ctx, 0, p.prefix+pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return convertRedisError(err)
	}
	sort.Strings(keys)

	slice.Set(slice.Slice(0, 0))
	if len(keys) == 0 {
		return nil
	}

	values, err := tx.conn.MGet(ctx, keys...).Result()
	if err != nil {
		return convertRedisError(err)
	}

	elemType := slice.Type().Elem()
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// expired or deleted between SCAN and MGET
			continue
		}
		elem := reflect.New(elemType)
		if err := json.Unmarshal([]byte(s), elem.Interface()); err != nil {
			return uow.NewErrorWithCause(uow.ErrorKindInvalidArgument, "failed to decode "+keys[i], err)
		}
		slice.Set(reflect.Append(slice, elem.Elem()))
	}
	return nil
}

// Find loads the entity stored under key into dest.
func (p *Provider) Find(ctx context.Context, dest interface{}, key interface{}) (bool, error) {
	tx, err := p.Tx(ctx)
	if err != nil {
		return false, err
	}

	ns, err := p.namespace(dest)
	if err != nil {
		return false, err
	}

	data, err := tx.conn.Get(ctx, p.entityKey(ns, key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, convertRedisError(err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, uow.NewErrorWithCause(uow.ErrorKindInvalidArgument, "failed to decode entity", err)
	}
	return true, nil
}

// Insert queues the entity, assigning its key first when it is transient:
// integer keys come from a per-namespace counter and string keys are UUIDs.
// It reports false when the key is already taken.
func (p *Provider) Insert(ctx context.Context, entity interface{}) (bool, error) {
	tx, err := p.Tx(ctx)
	if err != nil {
		return false, err
	}

	ns, err := p.namespace(entity)
	if err != nil {
		return false, err
	}
	field, err := p.keyField(entity)
	if err != nil {
		return false, err
	}
	generated := field.IsZero()
	if generated {
		if err := p.generateKey(ctx, tx, ns, field); err != nil {
			return false, err
		}
	}
	// a rejected insert leaves the entity transient
	reset := func() {
		if generated {
			field.Set(reflect.Zero(field.Type()))
		}
	}

	key := p.entityKey(ns, field.Interface())
	exists, err := tx.conn.Exists(ctx, key).Result()
	if err != nil {
		reset()
		return false, convertRedisError(err)
	}
	if exists > 0 {
		reset()
		return false, nil
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return false, uow.NewErrorWithCause(uow.ErrorKindInvalidArgument, "failed to encode entity", err)
	}
	tx.pipe.SetNX(ctx, key, data, p.ttl)
	return true, nil
}

// Update queues an overwrite of an existing entity. It reports false when
// nothing is stored under the entity's key.
func (p *Provider) Update(ctx context.Context, entity interface{}) (bool, error) {
	tx, key, err := p.existingKey(ctx, entity)
	if err != nil || key == "" {
		return false, err
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return false, uow.NewErrorWithCause(uow.ErrorKindInvalidArgument, "failed to encode entity", err)
	}
	tx.pipe.SetXX(ctx, key, data, p.ttl)
	return true, nil
}

// Delete queues the removal of an existing entity. It reports false when
// nothing is stored under the entity's key.
func (p *Provider) Delete(ctx context.Context, entity interface{}) (bool, error) {
	tx, key, err := p.existingKey(ctx, entity)
	if err != nil || key == "" {
		return false, err
	}
	tx.pipe.Del(ctx, key)
	return true, nil
}

// Execute queues a raw command such as "EXPIRE ? ?". Each ? is replaced by the
// next argument. The command runs on Commit, so the returned count is always 0.
func (p *Provider) Execute(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	tx, err := p.Tx(ctx)
	if err != nil {
		return 0, err
	}

	cmd, err := command(statement, args)
	if err != nil {
		return 0, err
	}
	tx.pipe.Do(ctx, cmd...)
	return 0, nil
}

// Ping checks the server is reachable
func (p *Provider) Ping(ctx context.Context) error {
	return convertRedisError(p.client.Ping(ctx).Err())
}

func (p *Provider) existingKey(ctx context.Context, entity interface{}) (*transaction, string, error) {
	tx, err := p.Tx(ctx)
	if err != nil {
		return nil, "", err
	}

	ns, err := p.namespace(entity)
	if err != nil {
		return nil, "", err
	}
	field, err := p.keyField(entity)
	if err != nil {
		return nil, "", err
	}
	if field.IsZero() {
		return nil, "", uow.NewError(uow.ErrorKindInvalidArgument, "entity has no key")
	}

	key := p.entityKey(ns, field.Interface())
	exists, err := tx.conn.Exists(ctx, key).Result()
	if err != nil {
		return nil, "", convertRedisError(err)
	}
	if exists == 0 {
		return tx, "", nil
	}
	return tx, key, nil
}

func (p *Provider) entityKey(ns string, key interface{}) string {
	return p.prefix + ns + ":" + fmt.Sprint(key)
}

func (p *Provider) namespace(entity interface{}) (string, error) {
	info, err := uow.Describe(entity)
	if err != nil {
		return "", err
	}
	if n, ok := reflect.New(info.Type).Interface().(Namespacer); ok {
		return n.Namespace(), nil
	}
	return strings.ToLower(info.Name), nil
}

// keyField returns the settable key field of entity: its single declared key,
// or a field named ID.
func (p *Provider) keyField(entity interface{}) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, uow.NewError(uow.ErrorKindInvalidArgument, fmt.Sprintf("entity must be a pointer to a struct, got %T", entity))
	}
	info, err := uow.Describe(entity)
	if err != nil {
		return reflect.Value{}, err
	}

	var field uow.FieldInfo
	switch keys := info.KeyFields(); {
	case len(keys) == 1:
		field = keys[0]
	case len(keys) > 1:
		return reflect.Value{}, uow.NewError(uow.ErrorKindUnsupported, "composite keys are not supported")
	default:
		f, ok := info.Field("ID")
		if !ok {
			return reflect.Value{}, uow.NewError(uow.ErrorKindInvalidArgument, "entity must have a key field")
		}
		field = f
	}
	return v.Elem().FieldByIndex(field.Index), nil
}

func (p *Provider) generateKey(ctx context.Context, tx *transaction, ns string, field reflect.Value) error {
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := tx.conn.Incr(ctx, p.prefix+"seq:"+ns).Result()
		if err != nil {
			return convertRedisError(err)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := tx.conn.Incr(ctx, p.prefix+"seq:"+ns).Result()
		if err != nil {
			return convertRedisError(err)
		}
		field.SetUint(uint64(n))
	case reflect.String:
		field.SetString(uuid.NewString())
	default:
		return uow.NewError(uow.ErrorKindUnsupported, fmt.Sprintf("cannot generate a %s key", field.Type()))
	}
	return nil
}

// bind substitutes each ? in pattern with the next argument.
func bind(pattern string, args []interface{}) (string, error) {
	var b strings.Builder
	next := 0
	for _, r := range pattern {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		if next >= len(args) {
			return "", uow.NewError(uow.ErrorKindInvalidArgument, "not enough arguments for "+pattern)
		}
		b.WriteString(fmt.Sprint(args[next]))
		next++
	}
	if next != len(args) {
		return "", uow.NewError(uow.ErrorKindInvalidArgument, "too many arguments for "+pattern)
	}
	return b.String(), nil
}

// command splits statement into words, replacing each standalone ? with the
// next argument.
func command(statement string, args []interface{}) ([]interface{}, error) {
	words := strings.Fields(statement)
	if len(words) == 0 {
		return nil, uow.NewError(uow.ErrorKindInvalidArgument, "empty command")
	}

	cmd := make([]interface{}, 0, len(words))
	next := 0
	for _, w := range words {
		if w != "?" {
			cmd = append(cmd, w)
			continue
		}
		if next >= len(args) {
			return nil, uow.NewError(uow.ErrorKindInvalidArgument, "not enough arguments for "+statement)
		}
		cmd = append(cmd, args[next])
		next++
	}
	if next != len(args) {
		return nil, uow.NewError(uow.ErrorKindInvalidArgument, "too many arguments for "+statement)
	}
	return cmd, nil
}

// =====================================
// Connection and Transaction
// =====================================

type connection struct {
	conn *redis.Conn
}

func (c *connection) BeginTx(ctx context.Context, level uow.IsolationLevel) (*transaction, error) {
	return &transaction{conn: c.conn, pipe: c.conn.TxPipeline()}, nil
}

func (c *connection) Close(ctx context.Context) error {
	return c.conn.Close()
}

type transaction struct {
	conn *redis.Conn
	pipe redis.Pipeliner
}

func (t *transaction) Commit(ctx context.Context) error {
	_, err := t.pipe.Exec(ctx)
	return convertRedisError(err)
}

func (t *transaction) Rollback(ctx context.Context) error {
	return t.pipe.Discard()
}

// =====================================
// Factory and Registration
// =====================================

// Factory creates providers over one *redis.Client.
type Factory struct {
	client   *redis.Client
	settings Settings
	opts     []uow.Option
}

// NewFactory returns a Factory over client.
func NewFactory(client *redis.Client, settings Settings, opts ...uow.Option) *Factory {
	return &Factory{client: client, settings: settings, opts: opts}
}

// CreateProvider implements uow.ProviderFactory.
func (f *Factory) CreateProvider(level uow.IsolationLevel) (*Provider, error) {
	return NewProvider(f.client, f.settings, level, f.opts...), nil
}

// Register registers client and the *Provider factory over it in c.
func Register(c *uow.Container, client *redis.Client, settings Settings, opts ...uow.Option) {
	uow.RegisterInstance(c, client)
	uow.RegisterProvider[*Provider](c, NewFactory(client, settings, opts...))
}

// =====================================
// Opening a Client
// =====================================

// Open creates a client for config and checks the server responds.
// options["redis"] may set dial_timeout, read_timeout, write_timeout, ttl
// (durations or duration strings) and key_prefix. The returned Settings carry
// ttl and key_prefix.
func Open(ctx context.Context, config uow.Config) (*redis.Client, Settings, error) {
	var settings Settings
	var opts *redis.Options

	if config.ConnectionURL != "" {
		parsed, err := redis.ParseURL(config.ConnectionURL)
		if err != nil {
			return nil, settings, uow.NewErrorWithCause(uow.ErrorKindConfiguration, "invalid redis url", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
			Username: config.Username,
			Password: config.Password,
			DB:       0, // Default database
		}
		if config.Database != "" {
			db, err := strconv.Atoi(config.Database)
			if err != nil {
				return nil, settings, uow.NewErrorWithCause(uow.ErrorKindConfiguration, "redis database must be a number", err)
			}
			opts.DB = db
		}
	}

	// Configure connection pool
	if config.MaxOpenConns > 0 {
		opts.PoolSize = config.MaxOpenConns
	}
	if config.MaxIdleConns > 0 {
		opts.MinIdleConns = config.MaxIdleConns
	}
	if config.ConnMaxLifetime > 0 {
		opts.MaxConnAge = config.ConnMaxLifetime
	}
	if config.ConnMaxIdleTime > 0 {
		opts.IdleTimeout = config.ConnMaxIdleTime
	}

	redisOpts := config.AdapterOptions("redis")
	if d, ok := duration(redisOpts["dial_timeout"]); ok {
		opts.DialTimeout = d
	}
	if d, ok := duration(redisOpts["read_timeout"]); ok {
		opts.ReadTimeout = d
	}
	if d, ok := duration(redisOpts["write_timeout"]); ok {
		opts.WriteTimeout = d
	}
	if d, ok := duration(redisOpts["ttl"]); ok {
		settings.TTL = d
	}
	if prefix, ok := redisOpts["key_prefix"].(string); ok {
		settings.KeyPrefix = prefix
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, settings, uow.NewErrorWithCause(uow.ErrorKindResource, "failed to connect to Redis", err)
	}
	return client, settings, nil
}

func duration(v interface{}) (time.Duration, bool) {
	switch d := v.(type) {
	case time.Duration:
		return d, true
	case string:
		parsed, err := time.ParseDuration(d)
		return parsed, err == nil
	case int:
		return time.Duration(d) * time.Second, true
	}
	return 0, false
}

// =====================================
// Error Conversion
// =====================================

// convertRedisError converts Redis errors to uow errors
func convertRedisError(err error) error {
	if err == nil {
		return nil
	}

	if err == redis.Nil {
		return uow.NewError(uow.ErrorKindNotFound, "key not found")
	}
	if err == redis.TxFailedErr {
		return uow.NewErrorWithCause(uow.ErrorKindResource, "transaction aborted", err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return uow.NewErrorWithCause(uow.ErrorKindTimeout, "operation timeout", err)
	}

	return uow.NewErrorWithCause(uow.ErrorKindResource, "Redis operation failed", err)
}
