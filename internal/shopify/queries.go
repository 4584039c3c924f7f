package shopify

// GraphQL documents used against the Admin API. Kept together so the
// sync adapter and the reconciliation pass share one source of truth.

const searchProductsQuery = `
query SearchProducts($query: String!) {
  products(first: 5, query: $query) {
    edges {
      node {
        id
        title
      }
    }
  }
}`

const createProductMutation = `
mutation CreateProduct($input: ProductInput!) {
  productCreate(input: $input) {
    userErrors {
      field
      message
    }
    product {
      id
      title
    }
  }
}`

const locationsQuery = `
query { locations(first: 1) { edges { node { id } } } }`

const createVariantsMutation = `
mutation CreateVariants($productId: ID!, $variants: [ProductVariantsBulkInput!]!) {
  productVariantsBulkCreate(productId: $productId, variants: $variants) {
    userErrors {
      field
      message
    }
    productVariants {
      id
      title
      sku
    }
  }
}`

const productVariantsQuery = `
query GetProductVariants($id: ID!) {
  product(id: $id) {
    variants(first: 100) {
      edges {
        node {
          id
          sku
          selectedOptions {
            name
            value
          }
        }
      }
    }
  }
}`

const deleteVariantsMutation = `
mutation DeleteVariants($productId: ID!, $variantsIds: [ID!]!) {
  productVariantsBulkDelete(productId: $productId, variantsIds: $variantsIds) {
    userErrors {
      field
      message
    }
  }
}`

const publicationsQuery = `
query {
  publications(first: 20) {
    edges {
      node {
        id
        name
      }
    }
  }
}`

const publishablePublishMutation = `
mutation PublishablePublish($id: ID!, $input: [PublicationInput!]!) {
  publishablePublish(id: $id, input: $input) {
    userErrors {
      field
      message
    }
  }
}`

const listProductsQuery = `
query ListProducts($cursor: String) {
  products(first: 50, after: $cursor) {
    pageInfo {
      hasNextPage
      endCursor
    }
    edges {
      node {
        id
        title
        vendor
      }
    }
  }
}`
