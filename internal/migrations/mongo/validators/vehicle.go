package validators

import "go.mongodb.org/mongo-driver/bson"

var VehicleValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"vehicle_name",
			"type",
			"registration_number",
			"daily_rent_price",
			"availability_status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"vehicle_name": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"type": bson.M{
				"bsonType": "string",
				"enum":     []string{"car", "bike", "van", "SUV"},
			},

			"registration_number": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 50,
			},

			"daily_rent_price": bson.M{
				"bsonType": bson.A{"int", "long"},
				"minimum":  1,
			},

			"availability_status": bson.M{
				"bsonType": "string",
				"enum":     []string{"available", "booked"},
			},

			"revision": bson.M{
				"bsonType": bson.A{"int", "long"},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
