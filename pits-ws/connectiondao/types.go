package connectiondao

// Connection represents a live WebSocket connection stored in DynamoDB. A
// connection without a ManagerID acts as a manager, the addressable owner of
// zero or more child connections.
type Connection struct {
	PK           string                 `dynamodbav:"pk" ddb:"hash" json:"-"`
	Scope        string                 `dynamodbav:"scope" ddb:"gsi_hash:ScopeIndex" json:"-"`
	ConnectionID string                 `dynamodbav:"connection_id" json:"connectionId"`
	ManagerID    string                 `dynamodbav:"manager_id,omitempty" json:"managerId,omitempty"`
	Manager      bool                   `dynamodbav:"manager" json:"manager"`
	Authorized   bool                   `dynamodbav:"authorized" json:"authorized"`
	Claims       map[string]interface{} `dynamodbav:"claims,omitempty" json:"claims,omitempty"`
	ExpiresIn    int64                  `dynamodbav:"expires_in,omitempty" json:"expiresIn,omitempty"`
	Endpoint     string                 `dynamodbav:"endpoint" json:"-"`
	CreateTime   int64                  `dynamodbav:"create_time" json:"createTime"`
}

// ManagerLink is the secondary index record listing a child connection under
// its manager's namespace.
type ManagerLink struct {
	PK           string                 `dynamodbav:"pk" ddb:"hash" json:"-"`
	Scope        string                 `dynamodbav:"scope" ddb:"gsi_hash:ScopeIndex" json:"-"`
	ConnectionID string                 `dynamodbav:"connection_id" json:"connectionId"`
	ManagerID    string                 `dynamodbav:"manager_id" json:"managerId"`
	Authorized   bool                   `dynamodbav:"authorized" json:"authorized"`
	Claims       map[string]interface{} `dynamodbav:"claims,omitempty" json:"claims,omitempty"`
	ExpiresIn    int64                  `dynamodbav:"expires_in,omitempty" json:"expiresIn,omitempty"`
}
