package validators

import "go.mongodb.org/mongo-driver/bson"

// BookingValidator also rejects documents whose rental window is empty or
// inverted.
var BookingValidator = bson.M{
	"$expr": bson.M{
		"$gt": bson.A{"$rent_end_date", "$rent_start_date"},
	},
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"customer_id",
			"vehicle_id",
			"rent_start_date",
			"rent_end_date",
			"total_price",
			"status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"customer_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"vehicle_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"rent_start_date": bson.M{
				"bsonType": "date",
			},

			"rent_end_date": bson.M{
				"bsonType": "date",
			},

			"total_price": bson.M{
				"bsonType": bson.A{"int", "long"},
				"minimum":  1,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"active",
					"cancelled",
					"returned",
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
