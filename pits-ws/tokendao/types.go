package tokendao

// Token is a single-use control-plane credential consumed by the login
// handshake. Activation is monotonic: once activated, the token can never
// authorize another connection.
type Token struct {
	PK            string        `dynamodbav:"pk" ddb:"hash" json:"-"`
	ID            string        `dynamodbav:"id" json:"id"`
	CreateTime    int64         `dynamodbav:"create_time" json:"createTime"`
	ExpiresIn     int64         `dynamodbav:"expires_in,omitempty" json:"expiresIn,omitempty"`
	Authorization Authorization `dynamodbav:"authorization" json:"authorization"`
}

// Authorization records which connection consumed the token.
type Authorization struct {
	ConnectionID string `dynamodbav:"connection_id,omitempty" json:"connectionId,omitempty"`
	Activated    bool   `dynamodbav:"activated" json:"activated"`
}
