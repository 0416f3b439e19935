package ir

import (
	"testing"
)

func parseOne(t *testing.T, ddl string) *Catalog {
	t.Helper()
	catalog, err := NewParser("").ParseDDL(ddl)
	if err != nil {
		t.Fatalf("ParseDDL failed: %v", err)
	}
	return catalog
}

func TestParseCreateTableColumns(t *testing.T) {
	catalog := parseOne(t, `
		CREATE TABLE products (
			id bigint NOT NULL,
			name varchar(255) NOT NULL,
			price numeric(10,2) DEFAULT 0,
			tags text[],
			active boolean DEFAULT true
		);
	`)

	if len(catalog.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(catalog.Tables))
	}
	table := catalog.Tables[0]
	if table.Schema != "public" || table.Name != "products" {
		t.Errorf("unexpected table identity %s.%s", table.Schema, table.Name)
	}
	if len(table.Columns) != 5 {
		t.Fatalf("expected 5 columns, got %d", len(table.Columns))
	}

	tests := []struct {
		name     string
		dataType string
		notNull  bool
	}{
		{"id", "bigint", true},
		{"name", "varchar(255)", true},
		{"price", "numeric(10,2)", false},
		{"tags", "text[]", false},
		{"active", "boolean", false},
	}
	for i, tt := range tests {
		col := table.Columns[i]
		if col.Name != tt.name {
			t.Errorf("column %d: got name %q, want %q", i, col.Name, tt.name)
		}
		if col.DataType != tt.dataType {
			t.Errorf("column %q: got type %q, want %q", tt.name, col.DataType, tt.dataType)
		}
		if col.NotNull != tt.notNull {
			t.Errorf("column %q: got notNull %v, want %v", tt.name, col.NotNull, tt.notNull)
		}
	}

	if table.Columns[2].Default == nil || *table.Columns[2].Default != "0" {
		t.Errorf("price default: got %v, want 0", table.Columns[2].Default)
	}
	if table.Columns[4].Default == nil || *table.Columns[4].Default != "true" {
		t.Errorf("active default: got %v, want true", table.Columns[4].Default)
	}
}

func TestParseSerialColumn(t *testing.T) {
	catalog := parseOne(t, `CREATE TABLE users (id serial PRIMARY KEY, big_id bigserial);`)

	table := catalog.Tables[0]
	id := table.Column("id")
	if id.DataType != "INT4" {
		t.Errorf("serial stored as %q, want INT4", id.DataType)
	}
	if !id.NotNull {
		t.Error("serial column should be NOT NULL")
	}
	if id.Default == nil || *id.Default != "nextval('users_id_seq'::regclass)" {
		t.Errorf("serial default: got %v", id.Default)
	}
	if table.PrimaryKey == nil || table.PrimaryKey.Columns[0] != "id" {
		t.Errorf("expected primary key on id, got %+v", table.PrimaryKey)
	}

	bigID := table.Column("big_id")
	if bigID.DataType != "INT8" {
		t.Errorf("bigserial stored as %q, want INT8", bigID.DataType)
	}
	if bigID.Default == nil || *bigID.Default != "nextval('users_big_id_seq'::regclass)" {
		t.Errorf("bigserial default: got %v", bigID.Default)
	}
}

func TestParseTableConstraints(t *testing.T) {
	catalog := parseOne(t, `
		CREATE TABLE orders (
			id bigint,
			user_id bigint,
			code text,
			total numeric CHECK (total >= 0),
			CONSTRAINT orders_pkey PRIMARY KEY (id),
			CONSTRAINT orders_code_unique UNIQUE (code),
			CONSTRAINT fk_orders_users FOREIGN KEY (user_id)
				REFERENCES users (id) ON DELETE CASCADE ON UPDATE RESTRICT
		);
	`)

	table := catalog.Tables[0]
	if table.PrimaryKey == nil || table.PrimaryKey.Name != "orders_pkey" {
		t.Fatalf("primary key: got %+v", table.PrimaryKey)
	}
	if len(table.Uniques) != 1 || table.Uniques[0].Name != "orders_code_unique" {
		t.Fatalf("uniques: got %+v", table.Uniques)
	}
	if len(table.Checks) != 1 || table.Checks[0].Expression != "total >= 0" {
		t.Fatalf("checks: got %+v", table.Checks)
	}

	if len(table.ForeignKeys) != 1 {
		t.Fatalf("expected 1 foreign key, got %d", len(table.ForeignKeys))
	}
	fk := table.ForeignKeys[0]
	if fk.Name != "fk_orders_users" {
		t.Errorf("fk name: got %q", fk.Name)
	}
	if fk.RefSchema != "public" || fk.RefTable != "users" {
		t.Errorf("fk target: got %s.%s", fk.RefSchema, fk.RefTable)
	}
	if fk.OnDelete != RefActionCascade {
		t.Errorf("fk on delete: got %q", fk.OnDelete)
	}
	if fk.OnUpdate != RefActionRestrict {
		t.Errorf("fk on update: got %q", fk.OnUpdate)
	}
}

func TestParseGeneratedColumn(t *testing.T) {
	catalog := parseOne(t, `
		CREATE TABLE line_items (
			price numeric NOT NULL,
			quantity integer NOT NULL,
			total numeric GENERATED ALWAYS AS (price * quantity) STORED
		);
	`)

	col := catalog.Tables[0].Column("total")
	if col.Generated == nil {
		t.Fatal("expected generated column")
	}
	if !col.Generated.Always || !col.Generated.Stored {
		t.Errorf("generated flags: %+v", col.Generated)
	}
	if col.Generated.Expression != "price * quantity" {
		t.Errorf("generated expression: got %q", col.Generated.Expression)
	}
}

func TestParseCreateIndex(t *testing.T) {
	catalog := parseOne(t, `
		CREATE TABLE events (id bigint, payload jsonb, created_at timestamptz, kind text);
		CREATE UNIQUE INDEX events_id_idx ON events (id);
		CREATE INDEX CONCURRENTLY events_created_idx ON events (created_at DESC) WHERE kind = 'click';
		CREATE INDEX events_payload_idx ON events USING gin (payload) WITH (fastupdate = off);
		CREATE INDEX events_lower_kind_idx ON events (lower(kind));
	`)

	table := catalog.Tables[0]
	if len(table.Indexes) != 4 {
		t.Fatalf("expected 4 indexes, got %d", len(table.Indexes))
	}

	byName := make(map[string]*Index)
	for _, ix := range table.Indexes {
		byName[ix.Name] = ix
	}

	if ix := byName["events_id_idx"]; !ix.Unique || ix.Method != "btree" {
		t.Errorf("events_id_idx: %+v", ix)
	}
	created := byName["events_created_idx"]
	if !created.Concurrent {
		t.Error("events_created_idx should be concurrent")
	}
	if created.SortOrders["created_at"] != "DESC" {
		t.Errorf("sort orders: %v", created.SortOrders)
	}
	if created.Where != "kind = 'click'" {
		t.Errorf("where: got %q", created.Where)
	}
	payload := byName["events_payload_idx"]
	if payload.Method != "gin" {
		t.Errorf("method: got %q", payload.Method)
	}
	if payload.StorageParams["fastupdate"] != "off" {
		t.Errorf("storage params: %v", payload.StorageParams)
	}
	if ix := byName["events_lower_kind_idx"]; ix.Expression != "lower(kind)" {
		t.Errorf("expression index: got %q", ix.Expression)
	}
}

func TestParseIndexOnUnknownTableIsSkipped(t *testing.T) {
	catalog := parseOne(t, `
		CREATE TABLE known (id bigint);
		CREATE INDEX missing_idx ON missing (id);
	`)
	if len(catalog.Tables) != 1 || len(catalog.Tables[0].Indexes) != 0 {
		t.Errorf("index on unknown table should be skipped, got %+v", catalog.Tables)
	}
}

func TestParseEnum(t *testing.T) {
	catalog := parseOne(t, `CREATE TYPE order_status AS ENUM ('pending', 'shipped', 'delivered');`)
	if len(catalog.Enums) != 1 {
		t.Fatalf("expected 1 enum, got %d", len(catalog.Enums))
	}
	enum := catalog.Enums[0]
	if enum.Schema != "public" || enum.Name != "order_status" {
		t.Errorf("enum identity: %s.%s", enum.Schema, enum.Name)
	}
	want := []string{"pending", "shipped", "delivered"}
	if len(enum.Values) != len(want) {
		t.Fatalf("values: %v", enum.Values)
	}
	for i, v := range want {
		if enum.Values[i] != v {
			t.Errorf("value %d: got %q, want %q", i, enum.Values[i], v)
		}
	}
}

func TestParseViews(t *testing.T) {
	catalog := parseOne(t, `
		CREATE VIEW active_users WITH (security_barrier) AS SELECT id FROM users WHERE active WITH LOCAL CHECK OPTION;
		CREATE MATERIALIZED VIEW daily_totals AS SELECT count(*) FROM orders;
	`)

	if len(catalog.Views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(catalog.Views))
	}
	v := catalog.Views[0]
	if v.Name != "active_users" || v.Materialized {
		t.Errorf("first view: %+v", v)
	}
	if v.CheckOption != "LOCAL" {
		t.Errorf("check option: got %q", v.CheckOption)
	}
	if !v.SecurityBarrier {
		t.Error("security_barrier not captured")
	}
	mv := catalog.Views[1]
	if mv.Name != "daily_totals" || !mv.Materialized {
		t.Errorf("materialized view: %+v", mv)
	}
	if mv.Definition == "" {
		t.Error("materialized view definition is empty")
	}
}

func TestParseTrigger(t *testing.T) {
	catalog := parseOne(t, `
		CREATE TABLE orders (id bigint, status text, updated_at timestamptz);
		CREATE TRIGGER orders_touch
			BEFORE INSERT OR UPDATE OF status ON orders
			FOR EACH ROW
			WHEN (NEW.status IS DISTINCT FROM OLD.status)
			EXECUTE FUNCTION public.touch_row('orders');
	`)

	table := catalog.Tables[0]
	if len(table.Triggers) != 1 {
		t.Fatalf("expected 1 trigger, got %d", len(table.Triggers))
	}
	trig := table.Triggers[0]
	if trig.Name != "orders_touch" || trig.Timing != TriggerBefore || trig.ForEach != "ROW" {
		t.Errorf("trigger shape: %+v", trig)
	}
	if len(trig.Events) != 2 || trig.Events[0] != "INSERT" || trig.Events[1] != "UPDATE OF status" {
		t.Errorf("events: %v", trig.Events)
	}
	if trig.When == "" {
		t.Error("WHEN condition not captured")
	}
	// the public qualifier folds away so parsed DDL matches
	// pg_get_triggerdef output
	if trig.Function != "touch_row('orders')" {
		t.Errorf("function call: %q", trig.Function)
	}
}

func TestParseTriggerOnUnknownTableIsSkipped(t *testing.T) {
	catalog := parseOne(t, `
		CREATE TABLE t (id int);
		CREATE TRIGGER tg AFTER DELETE ON missing FOR EACH STATEMENT EXECUTE FUNCTION f();
	`)
	if len(catalog.Tables) != 1 || len(catalog.Tables[0].Triggers) != 0 {
		t.Errorf("trigger on unknown table should be skipped: %+v", catalog.Tables)
	}
}

func TestParseFunction(t *testing.T) {
	catalog := parseOne(t, `
		CREATE FUNCTION add_tax(amount numeric, rate numeric DEFAULT 0.2) RETURNS numeric
		LANGUAGE sql IMMUTABLE STRICT
		AS $$ SELECT amount * (1 + rate) $$;
	`)

	if len(catalog.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(catalog.Functions))
	}
	fn := catalog.Functions[0]
	if fn.Name != "add_tax" || fn.IsProcedure {
		t.Errorf("function identity: %+v", fn)
	}
	if fn.Returns != "numeric" {
		t.Errorf("returns: got %q", fn.Returns)
	}
	if fn.Language != "sql" {
		t.Errorf("language: got %q", fn.Language)
	}
	if fn.Volatility != "IMMUTABLE" {
		t.Errorf("volatility: got %q", fn.Volatility)
	}
	if !fn.Strict {
		t.Error("strict not captured")
	}
	if len(fn.Params) != 2 {
		t.Fatalf("params: %+v", fn.Params)
	}
	if fn.Params[1].Default == "" {
		t.Error("parameter default not captured")
	}
	if fn.ArgTypes() != "numeric, numeric" {
		t.Errorf("arg types: got %q", fn.ArgTypes())
	}
}

func TestParseProcedure(t *testing.T) {
	catalog := parseOne(t, `
		CREATE PROCEDURE cleanup() LANGUAGE plpgsql AS $$ BEGIN DELETE FROM tmp; END $$;
	`)
	fn := catalog.Functions[0]
	if !fn.IsProcedure {
		t.Error("procedure not flagged")
	}
	if fn.Body == "" {
		t.Error("body not captured")
	}
}

func TestParseSequence(t *testing.T) {
	catalog := parseOne(t, `
		CREATE SEQUENCE invoice_numbers
			AS bigint INCREMENT BY 5 MINVALUE 100 MAXVALUE 999999 START WITH 100 CACHE 10 CYCLE;
	`)

	if len(catalog.Sequences) != 1 {
		t.Fatalf("expected 1 sequence, got %d", len(catalog.Sequences))
	}
	seq := catalog.Sequences[0]
	if seq.Increment != 5 || seq.Start != 100 || seq.Cache != 10 || !seq.Cycle {
		t.Errorf("sequence options: %+v", seq)
	}
	if seq.MinValue == nil || *seq.MinValue != 100 {
		t.Errorf("min value: %v", seq.MinValue)
	}
	if seq.MaxValue == nil || *seq.MaxValue != 999999 {
		t.Errorf("max value: %v", seq.MaxValue)
	}
	if seq.OwnedByColumnSerial() {
		t.Error("standalone sequence reported as column-owned")
	}
}

func TestParseExtensionAndSchema(t *testing.T) {
	catalog := parseOne(t, `
		CREATE EXTENSION IF NOT EXISTS pg_trgm WITH SCHEMA public;
		CREATE SCHEMA analytics;
	`)
	if len(catalog.Extensions) != 1 || catalog.Extensions[0].Name != "pg_trgm" {
		t.Fatalf("extensions: %+v", catalog.Extensions)
	}
	if catalog.Extensions[0].Schema != "public" {
		t.Errorf("extension schema: got %q", catalog.Extensions[0].Schema)
	}
	if len(catalog.Schemas) != 1 || catalog.Schemas[0].Name != "analytics" {
		t.Fatalf("schemas: %+v", catalog.Schemas)
	}
}

func TestParseComments(t *testing.T) {
	catalog := parseOne(t, `
		COMMENT ON TABLE users IS 'registered accounts';
		COMMENT ON COLUMN users.email IS 'unique login address';
	`)

	if len(catalog.Comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(catalog.Comments))
	}
	tc := catalog.Comments[0]
	if tc.Target != CommentOnTable || tc.Object != "users" || tc.Text != "registered accounts" {
		t.Errorf("table comment: %+v", tc)
	}
	cc := catalog.Comments[1]
	if cc.Target != CommentOnColumn || cc.Object != "users" || cc.Column != "email" {
		t.Errorf("column comment: %+v", cc)
	}
}

func TestParseSchemaQualifiedNames(t *testing.T) {
	catalog := parseOne(t, `CREATE TABLE app.accounts (id bigint);`)
	table := catalog.Tables[0]
	if table.Schema != "app" {
		t.Errorf("schema: got %q, want app", table.Schema)
	}
	if table.Key() != "app.accounts" {
		t.Errorf("key: got %q", table.Key())
	}
}

func TestParseToleratesBadStatement(t *testing.T) {
	catalog := parseOne(t, `
		CREATE TABLE good (id bigint);
		THIS IS NOT SQL;
		CREATE TABLE also_good (id bigint);
	`)
	if len(catalog.Tables) != 2 {
		t.Errorf("expected bad statement to be skipped, got %d tables", len(catalog.Tables))
	}
}

func TestParseSkipsUnsupportedStatements(t *testing.T) {
	catalog := parseOne(t, `
		CREATE TABLE t (id bigint);
		GRANT SELECT ON t TO PUBLIC;
		INSERT INTO t VALUES (1);
	`)
	if len(catalog.Tables) != 1 {
		t.Errorf("expected only the table, got %+v", catalog.Tables)
	}
}
