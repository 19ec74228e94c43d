package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBillingEventSchema(t *testing.T) {
	v := NewSchemaValidator()
	ctx := context.Background()

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{
			name:    "cancelled subscription",
			payload: `{"id":"ev_1","event_type":"subscription_cancelled","content":{"subscription":{"id":"sub_1","status":"cancelled","meta_data":{"store_hash":"abc"}}}}`,
		},
		{
			name:    "event without subscription",
			payload: `{"id":"ev_2","event_type":"customer_changed","content":{}}`,
		},
		{
			name:    "missing id",
			payload: `{"event_type":"subscription_cancelled","content":{}}`,
			wantErr: true,
		},
		{
			name:    "subscription without id",
			payload: `{"id":"ev_3","event_type":"subscription_cancelled","content":{"subscription":{"status":"cancelled"}}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(ctx, BillingEventSchema, []byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateEmptyPayload(t *testing.T) {
	err := NewSchemaValidator().Validate(context.Background(), BillingEventSchema, nil)
	require.Error(t, err)
}

func TestValidateUnknownSchema(t *testing.T) {
	err := NewSchemaValidator().Validate(context.Background(), "nope", []byte(`{}`))
	require.Error(t, err)
}

func TestCompiledSchemaIsCached(t *testing.T) {
	v := NewSchemaValidator()
	require.NoError(t, v.Validate(context.Background(), BillingEventSchema, []byte(`{"id":"e","event_type":"x","content":{}}`)))
	require.Len(t, v.cache, 1)
	require.NoError(t, v.Validate(context.Background(), BillingEventSchema, []byte(`{"id":"f","event_type":"x","content":{}}`)))
	require.Len(t, v.cache, 1)
}
