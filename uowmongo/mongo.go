// Package uowmongo provides MongoDB backed providers for units of work.
//
// Each provider runs one multi-document transaction on its own session, so
// the deployment must be a replica set or sharded cluster. Statements are
// extended JSON documents in which every unquoted ? is bound to the next
// argument: Query takes a filter such as {"status": ?} and Execute takes a
// database command such as {"delete": "orders", "deletes": [{"q": {}, "limit": 0}]}.
package uowmongo

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/lemmego/uow"
	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// CollectionNamer overrides the collection an entity type is stored in.
type CollectionNamer interface {
	CollectionName() string
}

var objectIDType = reflect.TypeOf(primitive.ObjectID{})

// =====================================
// Provider Implementation
// =====================================

// Provider implements uow.EntityProvider on a session of a shared
// *mongo.Client.
type Provider struct {
	*uow.Resource[*transaction]
	database *mongo.Database
}

var (
	_ uow.EntityProvider = (*Provider)(nil)
	_ uow.Migrator       = (*Provider)(nil)
	_ uow.Pinger         = (*Provider)(nil)
)

// NewProvider creates a provider over database. Its session is started on
// first use.
func NewProvider(database *mongo.Database, level uow.IsolationLevel, opts ...uow.Option) *Provider {
	p := &Provider{database: database}
	p.Resource = uow.NewResource[*transaction](level, p.connect, opts...)
	return p
}

// Database returns the shared database handle.
func (p *Provider) Database() *mongo.Database {
	return p.database
}

// Session returns a context bound to the provider's transaction, opening it
// if needed. Driver calls made with it take part in the transaction.
func (p *Provider) Session(ctx context.Context) (mongo.SessionContext, error) {
	tx, err := p.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return mongo.NewSessionContext(ctx, tx.session), nil
}

func (p *Provider) connect(ctx context.Context) (uow.Conn[*transaction], error) {
	session, err := p.database.Client().StartSession()
	if err != nil {
		return nil, err
	}
	return &connection{session: session}, nil
}

// Query finds the documents matching the filter statement in the collection
// of dest's element type and decodes them into dest, a *[]T. An empty
// statement matches every document.
func (p *Provider) Query(ctx context.Context, dest interface{}, statement string, args ...interface{}) error {
	sc, err := p.Session(ctx)
	if err != nil {
		return err
	}

	slice := reflect.TypeOf(dest)
	if slice == nil || slice.Kind() != reflect.Ptr || slice.Elem().Kind() != reflect.Slice {
		return uow.NewError(uow.ErrorKindInvalidArgument, fmt.Sprintf("dest must be a pointer to a slice, got %T", dest))
	}
	coll, err := p.collection(reflect.Zero(slice.Elem().Elem()).Interface())
	if err != nil {
		return err
	}

	if strings.TrimSpace(statement) == "" {
		statement = "{}"
	}
	filter, err := bindDocument(statement, args)
	if err != nil {
		return err
	}

	cursor, err := coll.Find(sc, filter)
	if err != nil {
		return convertMongoError(err)
	}
	defer cursor.Close(sc)

	return convertMongoError(cursor.All(sc, dest))
}

// Find loads the document whose _id equals key into dest. Hex strings are
// accepted for ObjectID keys.
func (p *Provider) Find(ctx context.Context, dest interface{}, key interface{}) (bool, error) {
	sc, err := p.Session(ctx)
	if err != nil {
		return false, err
	}
	coll, err := p.collection(dest)
	if err != nil {
		return false, err
	}
	id, err := p.keyValue(dest, key)
	if err != nil {
		return false, err
	}

	err = coll.FindOne(sc, bson.M{"_id": id}).Decode(dest)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, convertMongoError(err)
	}
	return true, nil
}

// Insert inserts the entity. A zero ObjectID or string key is assigned a new
// ObjectID first; any other zero key is filled from the id the server assigns.
func (p *Provider) Insert(ctx context.Context, entity interface{}) (bool, error) {
	sc, err := p.Session(ctx)
	if err != nil {
		return false, err
	}
	coll, err := p.collection(entity)
	if err != nil {
		return false, err
	}
	field, err := keyField(entity)
	if err != nil {
		return false, err
	}
	ensureID(field)

	res, err := coll.InsertOne(sc, entity)
	if err != nil {
		return false, convertMongoError(err)
	}
	if field.IsZero() && res.InsertedID != nil {
		id := reflect.ValueOf(res.InsertedID)
		if id.Type().AssignableTo(field.Type()) {
			field.Set(id)
		}
	}
	return true, nil
}

// Update replaces the stored document with entity. It reports false when no
// document has the entity's key.
func (p *Provider) Update(ctx context.Context, entity interface{}) (bool, error) {
	sc, coll, id, err := p.target(ctx, entity)
	if err != nil {
		return false, err
	}
	res, err := coll.ReplaceOne(sc, bson.M{"_id": id}, entity)
	if err != nil {
		return false, convertMongoError(err)
	}
	return res.MatchedCount > 0, nil
}

// Delete removes the document with the entity's key. It reports false when
// there is none.
func (p *Provider) Delete(ctx context.Context, entity interface{}) (bool, error) {
	sc, coll, id, err := p.target(ctx, entity)
	if err != nil {
		return false, err
	}
	res, err := coll.DeleteOne(sc, bson.M{"_id": id})
	if err != nil {
		return false, convertMongoError(err)
	}
	return res.DeletedCount > 0, nil
}

// Execute runs a database command and returns its "n" field, the number of
// documents the command matched or wrote, when present.
func (p *Provider) Execute(ctx context.Context, statement string, args ...interface{}) (int64, error) {
	sc, err := p.Session(ctx)
	if err != nil {
		return 0, err
	}
	cmd, err := bindDocument(statement, args)
	if err != nil {
		return 0, err
	}

	var result bson.M
	if err := p.database.RunCommand(sc, cmd).Decode(&result); err != nil {
		return 0, convertMongoError(err)
	}
	return affected(result["n"]), nil
}

// Migrate creates the collection of each entity type, skipping existing ones.
func (p *Provider) Migrate(ctx context.Context, entities ...interface{}) error {
	existing, err := p.database.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return convertMongoError(err)
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	for _, entity := range entities {
		name, err := collectionName(entity)
		if err != nil {
			return err
		}
		if have[name] {
			continue
		}
		if err := p.database.CreateCollection(ctx, name); err != nil {
			return convertMongoError(err)
		}
		have[name] = true
	}
	return nil
}

// Ping checks the primary is reachable
func (p *Provider) Ping(ctx context.Context) error {
	return convertMongoError(p.database.Client().Ping(ctx, readpref.Primary()))
}

func (p *Provider) collection(entity interface{}) (*mongo.Collection, error) {
	name, err := collectionName(entity)
	if err != nil {
		return nil, err
	}
	return p.database.Collection(name), nil
}

func (p *Provider) target(ctx context.Context, entity interface{}) (mongo.SessionContext, *mongo.Collection, interface{}, error) {
	sc, err := p.Session(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	coll, err := p.collection(entity)
	if err != nil {
		return nil, nil, nil, err
	}
	field, err := keyField(entity)
	if err != nil {
		return nil, nil, nil, err
	}
	if field.IsZero() {
		return nil, nil, nil, uow.NewError(uow.ErrorKindInvalidArgument, "entity has no key")
	}
	return sc, coll, field.Interface(), nil
}

// keyValue converts key to the type of dest's key field.
func (p *Provider) keyValue(dest interface{}, key interface{}) (interface{}, error) {
	field, err := keyField(dest)
	if err != nil {
		return nil, err
	}
	if hex, ok := key.(string); ok && field.Type() == objectIDType {
		id, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			return nil, uow.NewErrorWithCause(uow.ErrorKindInvalidArgument, "invalid ObjectID", err)
		}
		return id, nil
	}
	return key, nil
}

// collectionName returns the collection for entity: its CollectionName, or the
// lower-cased type name with an s suffix.
func collectionName(entity interface{}) (string, error) {
	info, err := uow.Describe(entity)
	if err != nil {
		return "", err
	}
	if n, ok := reflect.New(info.Type).Interface().(CollectionNamer); ok {
		return n.CollectionName(), nil
	}

	name := strings.ToLower(info.Name)
	if !strings.HasSuffix(name, "s") {
		name += "s"
	}
	return name, nil
}

// keyField returns the settable key field of entity: its single declared key,
// or a field named ID.
func keyField(entity interface{}) (reflect.Value, error) {
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

// ensureID assigns a new ObjectID to an empty ObjectID or string key.
func ensureID(field reflect.Value) {
	if !field.IsZero() {
		return
	}
	switch {
	case field.Type() == objectIDType:
		field.Set(reflect.ValueOf(primitive.NewObjectID()))
	case field.Kind() == reflect.String:
		field.SetString(primitive.NewObjectID().Hex())
	}
}

func affected(n interface{}) int64 {
	switch v := n.(type) {
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

// =====================================
// Statement Binding
// =====================================

const argKey = "__uow_arg"

// bindDocument parses an extended JSON statement, binding each unquoted ? to
// the next argument.
func bindDocument(statement string, args []interface{}) (bson.D, error) {
	marked, n := markPlaceholders(statement)
	if n != len(args) {
		return nil, uow.NewError(uow.ErrorKindInvalidArgument,
			fmt.Sprintf("statement has %d placeholders but %d arguments were given", n, len(args)))
	}

	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(marked), false, &doc); err != nil {
		return nil, uow.NewErrorWithCause(uow.ErrorKindInvalidArgument, "invalid MongoDB statement", err)
	}
	bound, ok := substitute(doc, args).(bson.D)
	if !ok {
		return nil, uow.NewError(uow.ErrorKindInvalidArgument, "statement must be a document")
	}
	return bound, nil
}

// markPlaceholders rewrites each ? outside string literals to a marker
// document holding its argument index.
func markPlaceholders(statement string) (string, int) {
	var b strings.Builder
	n := 0
	inString, escaped := false, false
	for _, r := range statement {
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case !inString && r == '?':
			fmt.Fprintf(&b, `{"%s": %d}`, argKey, n)
			n++
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), n
}

func substitute(v interface{}, args []interface{}) interface{} {
	switch val := v.(type) {
	case bson.D:
		if len(val) == 1 && val[0].Key == argKey {
			if i, ok := argIndex(val[0].Value); ok && i < len(args) {
				return args[i]
			}
		}
		out := make(bson.D, len(val))
		for i, e := range val {
			out[i] = bson.E{Key: e.Key, Value: substitute(e.Value, args)}
		}
		return out
	case bson.M:
		if idx, ok := val[argKey]; ok && len(val) == 1 {
			if i, ok := argIndex(idx); ok && i < len(args) {
				return args[i]
			}
		}
		out := make(bson.M, len(val))
		for k, e := range val {
			out[k] = substitute(e, args)
		}
		return out
	case bson.A:
		out := make(bson.A, len(val))
		for i, e := range val {
			out[i] = substitute(e, args)
		}
		return out
	}
	return v
}

func argIndex(v interface{}) (int, bool) {
	switch i := v.(type) {
	case int32:
		return int(i), true
	case int64:
		return int(i), true
	case float64:
		return int(i), true
	}
	return 0, false
}

// =====================================
// Session and Transaction
// =====================================

type connection struct {
	session mongo.Session
}

func (c *connection) BeginTx(ctx context.Context, level uow.IsolationLevel) (*transaction, error) {
	opts := options.Transaction().
		SetReadConcern(readConcern(level)).
		SetWriteConcern(writeconcern.Majority())
	if err := c.session.StartTransaction(opts); err != nil {
		return nil, convertMongoError(err)
	}
	return &transaction{session: c.session}, nil
}

func (c *connection) Close(ctx context.Context) error {
	c.session.EndSession(ctx)
	return nil
}

// readConcern maps an isolation level onto the closest transaction read concern.
func readConcern(level uow.IsolationLevel) *readconcern.ReadConcern {
	switch level {
	case uow.LevelReadUncommitted:
		return readconcern.Local()
	case uow.LevelRepeatableRead, uow.LevelSnapshot, uow.LevelSerializable:
		return readconcern.Snapshot()
	default:
		return readconcern.Majority()
	}
}

type transaction struct {
	session mongo.Session
}

func (t *transaction) Commit(ctx context.Context) error {
	return convertMongoError(t.session.CommitTransaction(ctx))
}

func (t *transaction) Rollback(ctx context.Context) error {
	return convertMongoError(t.session.AbortTransaction(ctx))
}

// =====================================
// Factory and Registration
// =====================================

// Factory creates providers over one *mongo.Database.
type Factory struct {
	database *mongo.Database
	opts     []uow.Option
}

// NewFactory returns a Factory over database.
func NewFactory(database *mongo.Database, opts ...uow.Option) *Factory {
	return &Factory{database: database, opts: opts}
}

// CreateProvider implements uow.ProviderFactory.
func (f *Factory) CreateProvider(level uow.IsolationLevel) (*Provider, error) {
	return NewProvider(f.database, level, f.opts...), nil
}

// Register registers database and the *Provider factory over it in c.
func Register(c *uow.Container, database *mongo.Database, opts ...uow.Option) {
	uow.RegisterInstance(c, database)
	uow.RegisterProvider[*Provider](c, NewFactory(database, opts...))
}

// =====================================
// Opening a Database
// =====================================

// Open connects to the deployment described by config and returns its
// config.Database. options["mongo"] may set max_pool_size, min_pool_size,
// max_idle_time and connect_timeout.
func Open(ctx context.Context, config uow.Config) (*mongo.Database, error) {
	clientOpts := options.Client().ApplyURI(buildConnectionURI(config))
	if config.MaxOpenConns > 0 {
		clientOpts.SetMaxPoolSize(uint64(config.MaxOpenConns))
	}
	if config.ConnMaxIdleTime > 0 {
		clientOpts.SetMaxConnIdleTime(config.ConnMaxIdleTime)
	}
	applyClientOptions(clientOpts, config.AdapterOptions("mongo"))

	if err := clientOpts.Validate(); err != nil {
		return nil, uow.NewErrorWithCause(uow.ErrorKindConfiguration, "invalid MongoDB options", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, uow.NewErrorWithCause(uow.ErrorKindResource, "failed to connect to MongoDB", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, uow.NewErrorWithCause(uow.ErrorKindResource, "failed to ping MongoDB", err)
	}

	return client.Database(config.Database), nil
}

// buildConnectionURI returns config.ConnectionURL, or a mongodb:// URI for a
// single host otherwise. Credentials and TLS file paths are escaped.
func buildConnectionURI(config uow.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	host, port := config.Host, config.Port
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 27017
	}
	u := url.URL{Scheme: "mongodb", Host: net.JoinHostPort(host, strconv.Itoa(port))}
	switch {
	case config.Username != "" && config.Password != "":
		u.User = url.UserPassword(config.Username, config.Password)
	case config.Username != "":
		u.User = url.User(config.Username)
	}
	if config.Database != "" {
		u.Path = "/" + config.Database
	}

	if config.SSL.Enabled {
		q := url.Values{"tls": {"true"}}
		if config.SSL.CAFile != "" {
			q.Set("tlsCAFile", config.SSL.CAFile)
		}
		if config.SSL.CertFile != "" {
			q.Set("tlsCertificateKeyFile", config.SSL.CertFile)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// applyClientOptions reads pool settings from options["mongo"]. Values may be
// numbers, durations or their string forms; unparseable ones are ignored.
func applyClientOptions(clientOpts *options.ClientOptions, mongoOpts map[string]interface{}) {
	for name, raw := range mongoOpts {
		switch name {
		case "max_pool_size", "min_pool_size":
			n, err := cast.ToUint64E(raw)
			if err != nil {
				continue
			}
			if name == "max_pool_size" {
				clientOpts.SetMaxPoolSize(n)
			} else {
				clientOpts.SetMinPoolSize(n)
			}
		case "max_idle_time", "connect_timeout":
			d, err := cast.ToDurationE(raw)
			if err != nil {
				continue
			}
			if name == "max_idle_time" {
				clientOpts.SetMaxConnIdleTime(d)
			} else {
				clientOpts.SetConnectTimeout(d)
			}
		}
	}
}
