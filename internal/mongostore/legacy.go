package mongostore

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
)

// Documents written by the legacy web app keep GitHub timestamps as ISO
// strings and commitGrowth as a "12.5" string whenever last year had commits.
var (
	tFloat64 = reflect.TypeOf(float64(0))
	tTime    = reflect.TypeOf(time.Time{})

	profileRegistry = newProfileRegistry()
)

func newProfileRegistry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	timeDecoder, err := reg.LookupDecoder(tTime)
	if err != nil {
		panic(fmt.Sprintf("mongostore: no default time decoder: %v", err))
	}
	reg.RegisterTypeDecoder(tFloat64, bsoncodec.ValueDecoderFunc(decodeLenientFloat))
	reg.RegisterTypeDecoder(tTime, lenientTimeDecoder{fallback: timeDecoder})
	return reg
}

// decodeLenientFloat accepts any numeric BSON type or a numeric string
func decodeLenientFloat(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Kind() != reflect.Float64 {
		return bsoncodec.ValueDecoderError{Name: "decodeLenientFloat", Kinds: []reflect.Kind{reflect.Float64}, Received: val}
	}

	var f float64
	var err error
	switch vr.Type() {
	case bson.TypeDouble:
		f, err = vr.ReadDouble()
	case bson.TypeInt32:
		var i int32
		i, err = vr.ReadInt32()
		f = float64(i)
	case bson.TypeInt64:
		var i int64
		i, err = vr.ReadInt64()
		f = float64(i)
	case bson.TypeString:
		var s string
		if s, err = vr.ReadString(); err == nil {
			f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		}
	case bson.TypeNull:
		err = vr.ReadNull()
	case bson.TypeUndefined:
		err = vr.ReadUndefined()
	default:
		return fmt.Errorf("cannot decode %v into a float64", vr.Type())
	}
	if err != nil {
		return err
	}

	val.SetFloat(f)
	return nil
}

// lenientTimeDecoder parses RFC 3339 strings and defers everything else
type lenientTimeDecoder struct {
	fallback bsoncodec.ValueDecoder
}

func (d lenientTimeDecoder) DecodeValue(dc bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if vr.Type() != bson.TypeString {
		return d.fallback.DecodeValue(dc, vr, val)
	}
	if !val.CanSet() || val.Type() != tTime {
		return bsoncodec.ValueDecoderError{Name: "lenientTimeDecoder", Types: []reflect.Type{tTime}, Received: val}
	}

	s, err := vr.ReadString()
	if err != nil {
		return err
	}
	var t time.Time
	if s != "" {
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t = t.UTC()
	}

	val.Set(reflect.ValueOf(t))
	return nil
}

// decodeUserDoc decodes a users document. A record without its own cachedAt
// takes the document's createdAt.
func decodeUserDoc(raw bson.Raw) (*userDoc, error) {
	dec, err := bson.NewDecoder(bsonrw.NewBSONDocumentReader(raw))
	if err != nil {
		return nil, err
	}
	if err := dec.SetRegistry(profileRegistry); err != nil {
		return nil, err
	}

	var doc userDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc.GithubData.CachedAt.IsZero() {
		doc.GithubData.CachedAt = doc.CreatedAt.UTC()
	}
	return &doc, nil
}
