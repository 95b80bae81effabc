package schemas

import "github.com/getkin/kin-openapi/openapi3"

// The built-in fragments mirror the gateway's configuration surface. Enum
// and default values here feed straight into form rendering and union
// default seeding, so they must stay in sync with the document model.

func bindSchema() *openapi3.Schema {
	return &openapi3.Schema{
		Type:     &openapi3.Types{openapi3.TypeObject},
		Title:    "bind",
		Required: []string{"port"},
		Properties: map[string]*openapi3.SchemaRef{
			"port": openapi3.NewSchemaRef("", openapi3.NewIntegerSchema().WithMin(1).WithMax(65535)),
			"tunnelProtocol": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type: &openapi3.Types{openapi3.TypeString},
				Enum: []any{"none", "PROXY", "HBONE"},
			}),
			"listeners": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type:  &openapi3.Types{openapi3.TypeArray},
				Items: openapi3.NewSchemaRef("", openapi3.NewObjectSchema()),
			}),
		},
	}
}

func listenerSchema() *openapi3.Schema {
	tls := &openapi3.Schema{
		Type:     &openapi3.Types{openapi3.TypeObject},
		Title:    "tls",
		Required: []string{"cert", "key"},
		Properties: map[string]*openapi3.SchemaRef{
			"cert": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"key":  openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		},
	}
	return &openapi3.Schema{
		Type:  &openapi3.Types{openapi3.TypeObject},
		Title: "listener",
		Properties: map[string]*openapi3.SchemaRef{
			"name":     openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"hostname": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"protocol": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type: &openapi3.Types{openapi3.TypeString},
				Enum: []any{"HTTP", "HTTPS", "TCP", "TLS", "HBONE"},
			}),
			"tls": openapi3.NewSchemaRef("", &openapi3.Schema{
				OneOf: openapi3.SchemaRefs{
					openapi3.NewSchemaRef("", &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeNull}}),
					openapi3.NewSchemaRef("", tls),
				},
			}),
			"routes": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type:  &openapi3.Types{openapi3.TypeArray},
				Items: openapi3.NewSchemaRef("", openapi3.NewObjectSchema()),
			}),
			"tcpRoutes": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type:  &openapi3.Types{openapi3.TypeArray},
				Items: openapi3.NewSchemaRef("", openapi3.NewObjectSchema()),
			}),
		},
	}
}

// pathMatchSchema is a true alternative union: exactly one of the three
// match styles may be present.
func pathMatchSchema() *openapi3.Schema {
	alt := func(key string) *openapi3.SchemaRef {
		return openapi3.NewSchemaRef("", &openapi3.Schema{
			Type:     &openapi3.Types{openapi3.TypeObject},
			Title:    key,
			Required: []string{key},
			Properties: map[string]*openapi3.SchemaRef{
				key: openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			},
		})
	}
	return &openapi3.Schema{
		OneOf: openapi3.SchemaRefs{alt("exact"), alt("pathPrefix"), alt("regex")},
	}
}

func matchSchema() *openapi3.Schema {
	return &openapi3.Schema{
		Type:  &openapi3.Types{openapi3.TypeObject},
		Title: "match",
		Properties: map[string]*openapi3.SchemaRef{
			"path":   openapi3.NewSchemaRef("", pathMatchSchema()),
			"method": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"headers": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type: &openapi3.Types{openapi3.TypeArray},
				Items: openapi3.NewSchemaRef("", &openapi3.Schema{
					Type:     &openapi3.Types{openapi3.TypeObject},
					Required: []string{"name", "value"},
					Properties: map[string]*openapi3.SchemaRef{
						"name":  openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
						"value": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
					},
				}),
			}),
		},
	}
}

func routeSchema() *openapi3.Schema {
	return &openapi3.Schema{
		Type:  &openapi3.Types{openapi3.TypeObject},
		Title: "route",
		Properties: map[string]*openapi3.SchemaRef{
			"name": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"hostnames": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type:  &openapi3.Types{openapi3.TypeArray},
				Items: openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			}),
			"matches": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type:  &openapi3.Types{openapi3.TypeArray},
				Items: openapi3.NewSchemaRef("", matchSchema()),
			}),
			"backends": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type:  &openapi3.Types{openapi3.TypeArray},
				Items: openapi3.NewSchemaRef("", BackendSchema()),
			}),
		},
	}
}

func tcpRouteSchema() *openapi3.Schema {
	return &openapi3.Schema{
		Type:  &openapi3.Types{openapi3.TypeObject},
		Title: "tcpRoute",
		Properties: map[string]*openapi3.SchemaRef{
			"name": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"hostnames": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type:  &openapi3.Types{openapi3.TypeArray},
				Items: openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			}),
			"backends": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type:  &openapi3.Types{openapi3.TypeArray},
				Items: openapi3.NewSchemaRef("", BackendSchema()),
			}),
		},
	}
}

// BackendSchema is the backend variant union. Each alternative is
// discriminated by its single required key, matching the pointer-field
// presence discrimination of the document model. The weight property sits
// outside the union and survives variant switches.
func BackendSchema() *openapi3.Schema {
	variant := func(title, key string, value *openapi3.Schema) *openapi3.SchemaRef {
		return openapi3.NewSchemaRef("", &openapi3.Schema{
			Type:     &openapi3.Types{openapi3.TypeObject},
			Title:    title,
			Required: []string{key},
			Properties: map[string]*openapi3.SchemaRef{
				key: openapi3.NewSchemaRef("", value),
			},
		})
	}

	host := &openapi3.Schema{
		Type:     &openapi3.Types{openapi3.TypeObject},
		Required: []string{"hostname", "port"},
		Properties: map[string]*openapi3.SchemaRef{
			"hostname": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"port":     openapi3.NewSchemaRef("", openapi3.NewIntegerSchema().WithMin(1).WithMax(65535)),
		},
	}
	service := &openapi3.Schema{
		Type:     &openapi3.Types{openapi3.TypeObject},
		Required: []string{"name", "port"},
		Properties: map[string]*openapi3.SchemaRef{
			"name":      openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"namespace": openapi3.NewSchemaRef("", openapi3.NewStringSchema().WithDefault("default")),
			"port":      openapi3.NewSchemaRef("", openapi3.NewIntegerSchema().WithMin(1).WithMax(65535)),
		},
	}
	ai := &openapi3.Schema{
		Type:     &openapi3.Types{openapi3.TypeObject},
		Required: []string{"provider"},
		Properties: map[string]*openapi3.SchemaRef{
			"provider": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type: &openapi3.Types{openapi3.TypeString},
				Enum: []any{"openAI", "anthropic", "bedrock", "vertex"},
			}),
			"model": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		},
	}
	mcp := &openapi3.Schema{
		Type: &openapi3.Types{openapi3.TypeObject},
		Properties: map[string]*openapi3.SchemaRef{
			"targets": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type: &openapi3.Types{openapi3.TypeArray},
				Items: openapi3.NewSchemaRef("", &openapi3.Schema{
					Type:     &openapi3.Types{openapi3.TypeObject},
					Required: []string{"name", "url"},
					Properties: map[string]*openapi3.SchemaRef{
						"name": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
						"url":  openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
					},
				}),
			}),
		},
	}

	return &openapi3.Schema{
		Type:  &openapi3.Types{openapi3.TypeObject},
		Title: "backend",
		Properties: map[string]*openapi3.SchemaRef{
			"weight": openapi3.NewSchemaRef("", openapi3.NewIntegerSchema().WithMin(0)),
		},
		OneOf: openapi3.SchemaRefs{
			variant("host", "host", host),
			variant("service", "service", service),
			variant("ai", "ai", ai),
			variant("mcp", "mcp", mcp),
			variant("dynamic", "dynamic", openapi3.NewObjectSchema()),
			variant("reference", "backend", openapi3.NewStringSchema()),
		},
	}
}

func policySchema() *openapi3.Schema {
	return &openapi3.Schema{
		Type:     &openapi3.Types{openapi3.TypeObject},
		Title:    "policy",
		Required: []string{"name"},
		Properties: map[string]*openapi3.SchemaRef{
			"name": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"kind": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type: &openapi3.Types{openapi3.TypeString},
				Enum: []any{"cors", "rateLimit", "auth", "timeout", "retry"},
			}),
			"rules": openapi3.NewSchemaRef("", openapi3.NewObjectSchema()),
		},
	}
}
